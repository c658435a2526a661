package scheduler

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/trigger"
)

// fakeRegistry records schedule and cancel calls.
type fakeRegistry struct {
	scheduled map[string]trigger.Record
	payloads  map[string][]byte
	schedErr  error
	cancels   []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		scheduled: make(map[string]trigger.Record),
		payloads:  make(map[string][]byte),
	}
}

func (f *fakeRegistry) Schedule(key string, firstFire time.Time, period time.Duration, payload []byte) error {
	if f.schedErr != nil {
		return f.schedErr
	}
	f.scheduled[key] = trigger.Record{Key: key, Period: period, FirstFire: firstFire}
	f.payloads[key] = payload
	return nil
}

func (f *fakeRegistry) Cancel(key string) error {
	f.cancels = append(f.cancels, key)
	delete(f.scheduled, key)
	return nil
}

func (f *fakeRegistry) Active() []trigger.Record {
	records := make([]trigger.Record, 0, len(f.scheduled))
	for _, r := range f.scheduled {
		records = append(records, r)
	}
	return records
}

func (f *fakeRegistry) Stop() {}

func testCatalog(t *testing.T, defs ...models.SensorDefinition) *catalog.Catalog {
	t.Helper()
	doc := struct {
		Sensors []models.SensorDefinition `json:"sensors"`
	}{Sensors: defs}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal catalog: %v", err)
	}
	return catalog.New(catalog.WithData(data))
}

func moodSensor() models.SensorDefinition {
	return models.SensorDefinition{
		ID:              "mood",
		Message:         "How do you feel?",
		Mode:            models.ResponseModeSingleChoice,
		Options:         []string{"Good", "Bad"},
		DefaultInterval: models.IntervalChoice{Label: "1 hour", Minutes: 60},
		IntervalLabels:  []string{"Off", "1 hour"},
		IntervalMinutes: []int64{-1, 60},
	}
}

func stressSensor() models.SensorDefinition {
	def := moodSensor()
	def.ID = "stress"
	def.Message = "Are you stressed?"
	return def
}

func TestSetIntervalArmsTrigger(t *testing.T) {
	reg := newFakeRegistry()
	sched := New(testCatalog(t, moodSensor()), store.NewInMemoryStore(), reg)

	before := time.Now()
	record := sched.SetInterval("mood", 60)
	if record == nil {
		t.Fatal("SetInterval returned nil for a valid sensor")
	}
	if record.IntervalMinutes != 60 {
		t.Errorf("record interval = %d, want 60", record.IntervalMinutes)
	}

	installed, ok := reg.scheduled["mood"]
	if !ok {
		t.Fatal("trigger was not installed")
	}
	if installed.Period != time.Hour {
		t.Errorf("period = %v, want 1h", installed.Period)
	}

	// First fire lands the configured delay after arming, not immediately.
	minFirst := before.Add(DefaultFirstFireDelay - time.Second)
	if installed.FirstFire.Before(minFirst) {
		t.Errorf("first fire %v is earlier than arm time plus delay", installed.FirstFire)
	}

	// The payload is the definition captured at arm time.
	var def models.SensorDefinition
	if err := json.Unmarshal(reg.payloads["mood"], &def); err != nil {
		t.Fatalf("payload is not a definition: %v", err)
	}
	if def.ID != "mood" || len(def.Options) != 2 {
		t.Errorf("payload definition mismatch: %+v", def)
	}
}

func TestSetIntervalNonPositiveDisarms(t *testing.T) {
	reg := newFakeRegistry()
	sched := New(testCatalog(t, moodSensor()), store.NewInMemoryStore(), reg)

	sched.SetInterval("mood", 60)
	if record := sched.SetInterval("mood", -1); record != nil {
		t.Errorf("disabling interval returned a record: %+v", record)
	}
	if _, armed := reg.scheduled["mood"]; armed {
		t.Error("trigger still armed after disabling interval")
	}

	sched.SetInterval("mood", 60)
	if record := sched.SetInterval("mood", 0); record != nil {
		t.Error("zero interval should disarm, not arm")
	}
	if _, armed := reg.scheduled["mood"]; armed {
		t.Error("trigger still armed after zero interval")
	}
}

func TestSetIntervalUnknownSensor(t *testing.T) {
	reg := newFakeRegistry()
	sched := New(testCatalog(t, moodSensor()), store.NewInMemoryStore(), reg)

	if record := sched.SetInterval("no_such_sensor", 60); record != nil {
		t.Errorf("unknown sensor returned a record: %+v", record)
	}
	if len(reg.scheduled) != 0 {
		t.Error("unknown sensor must not install a trigger")
	}
}

func TestSetIntervalRegistryFailureReturnsNil(t *testing.T) {
	reg := newFakeRegistry()
	reg.schedErr = errors.New("registry down")
	sched := New(testCatalog(t, moodSensor()), store.NewInMemoryStore(), reg)

	if record := sched.SetInterval("mood", 60); record != nil {
		t.Errorf("registry failure returned a record: %+v", record)
	}
}

func TestArmAllArmsPositiveIntervalsOnly(t *testing.T) {
	reg := newFakeRegistry()
	st := store.NewInMemoryStore()
	st.SetInterval("mood", 60)
	st.SetInterval("stress", -1)
	sched := New(testCatalog(t, moodSensor(), stressSensor()), st, reg)

	sched.ArmAll()

	if _, armed := reg.scheduled["mood"]; !armed {
		t.Error("mood should be armed")
	}
	if _, armed := reg.scheduled["stress"]; armed {
		t.Error("stress has a disabled interval and must not be armed")
	}

	// ArmAll activates restart recovery.
	armed, err := st.GetFlag(store.FlagRecoveryArmed)
	if err != nil || !armed {
		t.Errorf("recovery flag after ArmAll = %v, %v, want true", armed, err)
	}
}

func TestArmAllIsIdempotent(t *testing.T) {
	reg := newFakeRegistry()
	st := store.NewInMemoryStore()
	st.SetInterval("mood", 60)
	sched := New(testCatalog(t, moodSensor()), st, reg)

	sched.ArmAll()
	sched.ArmAll()

	if got := len(reg.Active()); got != 1 {
		t.Errorf("Active() after double ArmAll = %d, want 1", got)
	}
}

func TestDisarmAll(t *testing.T) {
	reg := newFakeRegistry()
	st := store.NewInMemoryStore()
	st.SetInterval("mood", 60)
	st.SetInterval("stress", 30)
	sched := New(testCatalog(t, moodSensor(), stressSensor()), st, reg)

	sched.ArmAll()
	sched.DisarmAll()

	if got := len(reg.Active()); got != 0 {
		t.Errorf("Active() after DisarmAll = %d, want 0", got)
	}
	armed, _ := st.GetFlag(store.FlagRecoveryArmed)
	if armed {
		t.Error("recovery flag should be false after DisarmAll")
	}
}

func TestInitFromPreferences(t *testing.T) {
	reg := newFakeRegistry()
	st := store.NewInMemoryStore()
	st.SetInterval("mood", 60)
	sched := New(testCatalog(t, moodSensor()), st, reg)

	// Master switch off: nothing armed.
	st.SetFlag(store.FlagMasterSwitch, false)
	sched.InitFromPreferences()
	if got := len(reg.Active()); got != 0 {
		t.Errorf("Active() with master off = %d, want 0", got)
	}

	// Master switch on: armed from persisted intervals.
	st.SetFlag(store.FlagMasterSwitch, true)
	sched.InitFromPreferences()
	if got := len(reg.Active()); got != 1 {
		t.Errorf("Active() with master on = %d, want 1", got)
	}
}

func TestRecoverOnStart(t *testing.T) {
	reg := newFakeRegistry()
	st := store.NewInMemoryStore()
	st.SetInterval("mood", 60)
	sched := New(testCatalog(t, moodSensor()), st, reg)

	// Recovery not armed: nothing happens.
	sched.RecoverOnStart()
	if got := len(reg.Active()); got != 0 {
		t.Errorf("Active() without recovery flag = %d, want 0", got)
	}

	// Recovery armed: triggers come back.
	st.SetFlag(store.FlagRecoveryArmed, true)
	sched.RecoverOnStart()
	if got := len(reg.Active()); got != 1 {
		t.Errorf("Active() with recovery flag = %d, want 1", got)
	}
}

func TestWithFirstFireDelay(t *testing.T) {
	reg := newFakeRegistry()
	sched := New(testCatalog(t, moodSensor()), store.NewInMemoryStore(), reg, WithFirstFireDelay(time.Minute))

	before := time.Now()
	sched.SetInterval("mood", 60)

	installed := reg.scheduled["mood"]
	if installed.FirstFire.Before(before.Add(50 * time.Second)) {
		t.Errorf("first fire %v ignores the configured delay", installed.FirstFire)
	}
}

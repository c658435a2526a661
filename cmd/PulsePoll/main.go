package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/PulsePoll/internal/api"
	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/delivery"
	"github.com/BTreeMap/PulsePoll/internal/lockfile"
	"github.com/BTreeMap/PulsePoll/internal/metrics"
	"github.com/BTreeMap/PulsePoll/internal/notify"
	"github.com/BTreeMap/PulsePoll/internal/prompter"
	"github.com/BTreeMap/PulsePoll/internal/response"
	"github.com/BTreeMap/PulsePoll/internal/scheduler"
	"github.com/BTreeMap/PulsePoll/internal/settings"
	"github.com/BTreeMap/PulsePoll/internal/store"
	"github.com/BTreeMap/PulsePoll/internal/trigger"
	"github.com/BTreeMap/PulsePoll/internal/twiliosms"
	"github.com/BTreeMap/PulsePoll/internal/util"
	"github.com/BTreeMap/PulsePoll/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PulsePoll state data
	DefaultStateDir = "/var/lib/pulsepoll"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pulsepoll.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping PulsePoll with configured modules")
	if err := run(flags); err != nil {
		slog.Error("PulsePoll failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PulsePoll exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	CatalogPath     string
	APIAddr         string
	NotifyChannel   string
	NotifyTo        string
	WhatsAppDSN     string
	Sinks           string
	WebhookURL      string
	KafkaBrokers    string
	KafkaTopic      string
	MQTTBroker      string
	MQTTTopicPrefix string
	Registry        string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	catalogPath     *string
	apiAddr         *string
	notifyChannel   *string
	notifyTo        *string
	whatsAppDSN     *string
	qrOutput        *string
	numeric         *bool
	sinks           *string
	webhookURL      *string
	kafkaBrokers    *string
	kafkaTopic      *string
	mqttBroker      *string
	mqttTopicPrefix *string
	registry        *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("PULSEPOLL_STATE_DIR"),
		CatalogPath:     os.Getenv("CATALOG_PATH"),
		APIAddr:         os.Getenv("API_ADDR"),
		NotifyChannel:   os.Getenv("NOTIFY_CHANNEL"),
		NotifyTo:        os.Getenv("NOTIFY_TO"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		Sinks:           os.Getenv("DELIVERY_SINKS"),
		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      os.Getenv("KAFKA_TOPIC"),
		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTTopicPrefix: os.Getenv("MQTT_TOPIC_PREFIX"),
		Registry:        os.Getenv("TRIGGER_REGISTRY"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PULSEPOLL_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// No database URL means SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PULSEPOLL_STATE_DIR", config.StateDir,
		"CATALOG_PATH", config.CatalogPath,
		"API_ADDR", config.APIAddr,
		"NOTIFY_CHANNEL", config.NotifyChannel,
		"DELIVERY_SINKS", config.Sinks,
		"TRIGGER_REGISTRY", config.Registry)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for PulsePoll data (overrides $PULSEPOLL_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the interval store (overrides $DATABASE_URL)"),
		catalogPath:     flag.String("catalog", config.CatalogPath, "path to an external sensor catalog file, JSON or YAML (overrides $CATALOG_PATH)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		notifyChannel:   flag.String("notify-channel", config.NotifyChannel, "notification channel: log, whatsapp or sms (overrides $NOTIFY_CHANNEL)"),
		notifyTo:        flag.String("notify-to", config.NotifyTo, "recipient for the whatsapp and sms channels (overrides $NOTIFY_TO)"),
		whatsAppDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for WhatsApp session state (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:        flag.String("qr-output", "", "path to write login QR code"),
		numeric:         flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		sinks:           flag.String("sinks", config.Sinks, "comma-separated delivery sinks: store, webhook, kafka, mqtt, log (overrides $DELIVERY_SINKS)"),
		webhookURL:      flag.String("webhook-url", config.WebhookURL, "webhook sink URL (overrides $WEBHOOK_URL)"),
		kafkaBrokers:    flag.String("kafka-brokers", config.KafkaBrokers, "comma-separated Kafka brokers for the kafka sink (overrides $KAFKA_BROKERS)"),
		kafkaTopic:      flag.String("kafka-topic", config.KafkaTopic, "Kafka topic for the kafka sink (overrides $KAFKA_TOPIC)"),
		mqttBroker:      flag.String("mqtt-broker", config.MQTTBroker, "MQTT broker URL for the mqtt sink (overrides $MQTT_BROKER)"),
		mqttTopicPrefix: flag.String("mqtt-topic-prefix", config.MQTTTopicPrefix, "MQTT topic prefix for the mqtt sink (overrides $MQTT_TOPIC_PREFIX)"),
		registry:        flag.String("trigger-registry", config.Registry, "trigger registry backend: timer or cron (overrides $TRIGGER_REGISTRY)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"catalog", *flags.catalogPath,
		"apiAddr", *flags.apiAddr,
		"notifyChannel", *flags.notifyChannel,
		"sinks", *flags.sinks,
		"registry", *flags.registry)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return err
	}
	return nil
}

// buildStore opens the interval store for the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildNotifier selects the notification channel.
func buildNotifier(flags Flags) (notify.Notifier, error) {
	switch *flags.notifyChannel {
	case "whatsapp":
		var waOpts []whatsapp.Option
		if *flags.whatsAppDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsAppDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return notify.NewChannelNotifier(client, *flags.notifyTo), nil
	case "sms":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, err
		}
		return notify.NewChannelNotifier(client, *flags.notifyTo), nil
	default:
		return notify.NewLogNotifier(), nil
	}
}

// buildSink assembles the delivery sink fanout from the configured names.
// An empty configuration keeps the log-only sink.
func buildSink(flags Flags, st store.Store) (delivery.Sink, error) {
	if *flags.sinks == "" {
		return delivery.NewLogSink(), nil
	}

	var sinks []delivery.Sink
	for _, name := range strings.Split(*flags.sinks, ",") {
		switch strings.TrimSpace(name) {
		case "log":
			sinks = append(sinks, delivery.NewLogSink())
		case "store":
			sinks = append(sinks, delivery.NewStoreSink(st))
		case "webhook":
			sinks = append(sinks, delivery.NewWebhookSink(*flags.webhookURL))
		case "kafka":
			brokers := strings.Split(*flags.kafkaBrokers, ",")
			sinks = append(sinks, delivery.NewKafkaSink(brokers, *flags.kafkaTopic))
		case "mqtt":
			client, err := delivery.ConnectMQTT(*flags.mqttBroker, "pulsepoll")
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, delivery.NewMQTTSink(client, *flags.mqttTopicPrefix))
		default:
			slog.Warn("Unknown delivery sink name, skipping", "name", name)
		}
	}
	if len(sinks) == 0 {
		return delivery.NewLogSink(), nil
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return delivery.NewFanout(sinks...), nil
}

// run wires the modules together and serves until the API listener fails.
func run(flags Flags) error {
	// Single-instance guard: two processes on one state directory would
	// double every survey notification.
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	var catOpts []catalog.Option
	if *flags.catalogPath != "" {
		catOpts = append(catOpts, catalog.WithPath(*flags.catalogPath))
	}
	cat := catalog.New(catOpts...)

	m, promRegistry := metrics.New()

	if _, err := cat.Load(); err != nil {
		slog.Error("Sensor catalog load failed, continuing with empty catalog", "error", err)
		m.CatalogLoadFailure()
	}

	notifier, err := buildNotifier(flags)
	if err != nil {
		return err
	}

	sink, err := buildSink(flags, st)
	if err != nil {
		return err
	}

	pr := prompter.New(st, notifier, m)

	var reg trigger.Registry
	if *flags.registry == "cron" {
		reg = trigger.NewCronRegistry(pr.HandleFire)
	} else {
		reg = trigger.NewTimerRegistry(pr.HandleFire)
	}
	defer reg.Stop()

	sched := scheduler.New(cat, st, reg)
	dispatcher := settings.NewDispatcher(cat, st, sched)

	if err := dispatcher.EnsureInitialized(); err != nil {
		return err
	}
	sched.RecoverOnStart()

	respHandler := response.NewHandler(notifier, sink, m)

	var apiOpts []api.Option
	if util.ParseBoolEnv("METRICS_ENABLED", true) {
		apiOpts = append(apiOpts, api.WithMetricsHandler(metrics.Handler(promRegistry)))
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(cat, st, sched, dispatcher, pr, respHandler, apiOpts...)
	return server.Run()
}

// Command ridecontrol is the Ride Control Computer process: it owns the
// serial link to a RoboClaw motor controller, runs the Motor Controller
// Service and the Ride Supervisor, and exits cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ridecontrol/internal/config"
	"ridecontrol/motorcontroller"
	"ridecontrol/panel"
	"ridecontrol/roboclaw"
	"ridecontrol/show"
	"ridecontrol/supervisor"
	"ridecontrol/telemetrymqtt"
)

func main() {
	os.Exit(run())
}

func run() int {
	portFlag := flag.String("port", "", "serial port path (overrides RCC_SERIAL_PORT)")
	verboseFlag := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	logger := newLogger(*verboseFlag)
	defer logger.Sync()

	cfg := config.FromEnv()
	if *portFlag != "" {
		cfg.SerialPort = *portFlag
	}

	port, err := roboclaw.OpenPort(cfg.SerialPort)
	if err != nil {
		logger.Errorw("failed to open serial port", "port", cfg.SerialPort, "error", err)
		return 1
	}

	client := roboclaw.NewClient(port, roboclaw.Options{
		Address:     cfg.SerialAddress,
		AutoRecover: cfg.AutoRecover,
		Logger:      logger,
	})

	service := motorcontroller.NewService(client, logger)

	var publisher supervisor.TelemetryPublisher
	if cfg.MQTTEnabled {
		mqttPub, err := telemetrymqtt.Connect(telemetrymqtt.Options{
			Broker:     cfg.MQTTBroker,
			ClientID:   cfg.MQTTClientID,
			StateTopic: cfg.MQTTStateTopic,
			Username:   cfg.MQTTUsername,
			Password:   cfg.MQTTPassword,
		}, logger)
		if err != nil {
			logger.Errorw("mqtt connect failed, continuing without telemetry publish", "error", err)
		} else {
			defer mqttPub.Close()
			publisher = mqttPub
		}
	}

	sup := supervisor.New(
		service,
		panel.NewNullSource(),
		show.Noop{},
		publisher,
		logger,
		supervisor.Config{TelemetryPeriod: cfg.TelemetryPeriod},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "shutting down...")
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Errorw("supervisor exited with error", "error", err)
		return 1
	}
	return 0
}

func newLogger(verbose bool) *zap.SugaredLogger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		// zap itself failed to construct; fall back rather than crash on
		// a logging failure.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

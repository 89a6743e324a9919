package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartguard-relay/src/config"
	"smartguard-relay/src/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// -----------------------------------------------------------------------------

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "", "path to YAML config file (broker and topic)")
	interval := flag.Duration("interval", time.Second, "delay between published readings")
	badEvery := flag.Int("bad-every", 0, "publish a malformed payload every N messages (0 disables)")
	count := flag.Int("count", 0, "stop after N messages (0 runs until interrupted)")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.LogLevel, "Simulator")

	// 4. Connect to broker
	opts := paho.NewClientOptions()
	opts.AddBroker(conf.MQTT.Broker)
	opts.SetClientID(fmt.Sprintf("%s-sim-%d", conf.MQTT.ClientID, os.Getpid()))
	opts.SetUsername(conf.MQTT.Username)
	opts.SetPassword(conf.MQTT.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(conf.MQTT.KeepAlive)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		appLogger.Warning("Connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		appLogger.Critical("Failed to connect to %s: %v", conf.MQTT.Broker, token.Error())
	}
	defer client.Disconnect(250)
	appLogger.Info("Connected to %s, publishing to %s every %s", conf.MQTT.Broker, conf.MQTT.Topic, *interval)

	// 5. Publish loop
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gen := newGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), *badEvery)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for sent := 0; *count == 0 || sent < *count; sent++ {
		payload, bad := gen.next()
		token := client.Publish(conf.MQTT.Topic, conf.MQTT.QoS, false, payload)
		switch {
		case !token.WaitTimeout(conf.MQTT.ConnectTimeout):
			appLogger.Error("Publish timed out after %s", conf.MQTT.ConnectTimeout)
		case token.Error() != nil:
			appLogger.Error("Publish failed: %v", token.Error())
		case bad:
			appLogger.Info("Published malformed payload: %s", payload)
		default:
			appLogger.Debug("Published: %s", payload)
		}

		select {
		case <-ctx.Done():
			appLogger.Info("Stopping simulator...")
			return
		case <-ticker.C:
		}
	}
}

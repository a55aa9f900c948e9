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

	"strapmon/models"
	"strapmon/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	rps         = flag.Int("rps", 1, "Telemetry messages per second across the fleet")
	devices     = flag.Int("devices", 5, "Number of simulated straps")
	unwear      = flag.Float64("unwear", 0.05, "Probability a reading flips the wear state (0.0-1.0)")
	dropout     = flag.Float64("dropout", 0.01, "Probability a strap disconnects on a tick (0.0-1.0)")
	pushEvery   = flag.Duration("push-every", 0, "Simulate a policy push fan-out at this interval (0 disables)")
	pushFail    = flag.Float64("push-fail", 0.1, "Probability a strap fails the policy push")
	duplicates  = flag.Bool("duplicates", false, "Send a duplicate acknowledgment for some straps")
	stragglers  = flag.Bool("stragglers", false, "Send one acknowledgment after the completed summary")
	resetAfter  = flag.Duration("reset-after", 0, "Send a system reset after this long (0 disables)")
	mqttBroker  = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser    = flag.String("user", "", "MQTT username")
	mqttPass    = flag.String("pass", "", "MQTT password")
	topicPrefix = flag.String("prefix", "strapmon/events", "Topic prefix events are published under")
)

// strap is one simulated device
type strap struct {
	id        string
	connected bool
	state     models.WearState
	baseRaw   int
}

// FleetSimulator generates strap telemetry and server-side events
type FleetSimulator struct {
	straps []*strap
	unwear float64
	drop   float64
}

func NewFleetSimulator(count int, unwear, dropout float64) *FleetSimulator {
	straps := make([]*strap, 0, count)
	for i := 1; i <= count; i++ {
		straps = append(straps, &strap{
			id:        fmt.Sprintf("STRAP-%03d", i),
			connected: true,
			state:     models.WearClosed,
			baseRaw:   80 + rand.Intn(30),
		})
	}
	return &FleetSimulator{
		straps: straps,
		unwear: unwear,
		drop:   dropout,
	}
}

// Next returns the events produced by one strap on one tick
func (f *FleetSimulator) Next() []models.Event {
	s := f.straps[rand.Intn(len(f.straps))]
	now := time.Now()

	if !s.connected {
		// Straps come back on the next tick they are picked
		s.connected = true
		return []models.Event{
			models.Connect{DeviceID: s.id, Name: s.id, Address: fakeAddress(s.id)},
			models.Status{DeviceID: s.id, Status: models.DeviceStatus{Kind: models.StatusReady, Message: "ready", Timestamp: now}},
		}
	}

	if rand.Float64() < f.drop {
		s.connected = false
		return []models.Event{models.Disconnect{DeviceID: s.id, Error: "link supervision timeout"}}
	}

	var out []models.Event
	if rand.Float64() < f.unwear {
		old := s.state
		if s.state == models.WearClosed {
			s.state = models.WearOpen
		} else {
			s.state = models.WearClosed
		}
		out = append(out, models.StateChange{DeviceID: s.id, OldState: old, NewState: s.state, Timestamp: now})
	}

	raw := s.baseRaw + rand.Intn(10) - 5
	if s.state == models.WearOpen {
		raw = 170 + rand.Intn(80)
	}
	out = append(out, models.Telemetry{
		DeviceID: s.id,
		Reading: models.Reading{
			State:     s.state,
			Distance:  fmt.Sprintf("%d", raw),
			Raw:       raw,
			Avg:       raw,
			Diff:      rand.Intn(6),
			Timestamp: now,
		},
	})
	return out
}

// PolicyPush returns a full broadcast: started summary, one result per
// connected strap (with optional duplicates), the completed summary and
// optional stragglers
func (f *FleetSimulator) PolicyPush(failRate float64, dup, straggle bool) []models.Event {
	command := models.DefaultWearPolicy().Descriptor()
	now := time.Now()

	var targets []*strap
	for _, s := range f.straps {
		if s.connected {
			targets = append(targets, s)
		}
	}

	out := []models.Event{models.BroadcastSummary{Phase: models.PhaseStarted, Total: len(targets), Command: command, Timestamp: now}}
	if len(targets) == 0 {
		return out
	}

	success, failed := 0, 0
	for _, s := range targets {
		ok := rand.Float64() >= failRate
		result := models.BroadcastResult{DeviceID: s.id, Success: ok, Command: command, Timestamp: time.Now()}
		if ok {
			success++
		} else {
			failed++
			result.Error = "write characteristic failed"
		}
		out = append(out, result)
		if dup && rand.Float64() < 0.3 {
			out = append(out, result)
		}
	}

	out = append(out, models.BroadcastSummary{
		Phase:     models.PhaseCompleted,
		Total:     len(targets),
		Success:   &success,
		Failed:    &failed,
		Command:   command,
		Timestamp: time.Now(),
	})

	if straggle {
		out = append(out, models.BroadcastResult{DeviceID: targets[0].id, Success: true, Command: command, Timestamp: time.Now()})
	}
	return out
}

func fakeAddress(id string) string {
	sum := 0
	for _, c := range id {
		sum += int(c)
	}
	return fmt.Sprintf("AA:BB:CC:DD:%02X:%02X", (sum>>8)&0xff, sum&0xff)
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *devices <= 0 || *rps <= 0 {
		logger.Fatal("devices and rps must be positive")
	}

	logger.Info("Strap event generator started",
		zap.Int("devices", *devices),
		zap.Int("rps", *rps),
		zap.Float64("unwear_probability", *unwear),
		zap.Duration("push_every", *pushEvery),
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("topic_prefix", *topicPrefix),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("strapmon-eventgen-%d", os.Getpid()))
	if *mqttUser != "" {
		opts.SetUsername(*mqttUser)
		opts.SetPassword(*mqttPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	fleet := NewFleetSimulator(*devices, *unwear, *dropout)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	messageCount := 0
	publish := func(ev models.Event) {
		kind, body, err := models.EncodeEvent(ev)
		if err != nil {
			logger.Error("Failed to encode event", zap.Error(err))
			return
		}
		topic := services.EventTopic(*topicPrefix, kind)
		token := mqttClient.Publish(topic, 1, false, body)
		if token.Wait() && token.Error() != nil {
			logger.Error("Failed to publish MQTT message",
				zap.Error(token.Error()),
				zap.String("topic", topic))
			return
		}
		messageCount++
		logger.Debug("Published event", zap.String("topic", topic), zap.ByteString("body", body))
	}

	// Announce the fleet first
	for _, s := range fleet.straps {
		publish(models.Connect{DeviceID: s.id, Name: s.id, Address: fakeAddress(s.id)})
	}

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pushTick <-chan time.Time
	if *pushEvery > 0 {
		pushTicker := time.NewTicker(*pushEvery)
		defer pushTicker.Stop()
		pushTick = pushTicker.C
	}

	var resetTimer <-chan time.Time
	if *resetAfter > 0 {
		resetTimer = time.After(*resetAfter)
	}

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down gracefully...",
				zap.Int("total_messages", messageCount),
				zap.Duration("total_uptime", time.Since(startTime)))
			mqttClient.Disconnect(250)
			return

		case <-ticker.C:
			for _, ev := range fleet.Next() {
				publish(ev)
			}

		case <-pushTick:
			events := fleet.PolicyPush(*pushFail, *duplicates, *stragglers)
			logger.Info("Simulating policy push", zap.Int("events", len(events)))
			for _, ev := range events {
				publish(ev)
			}

		case <-resetTimer:
			logger.Info("Simulating system reset")
			publish(models.SystemReset{Timestamp: time.Now()})

		case <-statsTicker.C:
			logger.Info("Statistics",
				zap.Int("total_messages", messageCount),
				zap.Float64("avg_rate_msg_per_sec", float64(messageCount)/time.Since(startTime).Seconds()),
				zap.Duration("uptime", time.Since(startTime)))
		}
	}
}

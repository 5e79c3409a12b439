// Package main provides a development event source for go-powerdash: a
// WebSocket server that emits randomized device-state events the way a real
// installation gateway would, and acknowledges inbound commands.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resident-x/go-powerdash/internal/transport/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// DeviceSimulator emits a plausible stream of inverter/power/battery/energy/
// sensor events to every connected client.
type DeviceSimulator struct {
	interval time.Duration
	verbose  bool

	mu       sync.Mutex
	battery  int
	powerCut bool
	statuses []string
}

// NewDeviceSimulator creates a simulator starting from a healthy state.
func NewDeviceSimulator(interval time.Duration, verbose bool) *DeviceSimulator {
	return &DeviceSimulator{
		interval: interval,
		verbose:  verbose,
		battery:  75,
		statuses: []string{"online", "offline", "standby"},
	}
}

// nextEvent produces the next random event envelope.
func (sim *DeviceSimulator) nextEvent() ws.Envelope {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	marshal := func(v interface{}) json.RawMessage {
		data, _ := json.Marshal(v)
		return data
	}

	switch rand.Intn(6) {
	case 0:
		status := sim.statuses[rand.Intn(len(sim.statuses))]
		return ws.Envelope{Event: "inverterStatus", Data: marshal(map[string]string{"status": status})}
	case 1:
		sim.powerCut = !sim.powerCut && rand.Intn(4) == 0
		return ws.Envelope{Event: "powerStatus", Data: marshal(map[string]bool{"powerCut": sim.powerCut})}
	case 2:
		// Battery drains under power cut, charges otherwise
		if sim.powerCut {
			sim.battery -= rand.Intn(5)
		} else {
			sim.battery += rand.Intn(3)
		}
		if sim.battery < 0 {
			sim.battery = 0
		}
		if sim.battery > 100 {
			sim.battery = 100
		}
		return ws.Envelope{Event: "batteryUpdate", Data: marshal(map[string]int{"level": sim.battery})}
	case 3:
		watts := 200 + rand.Intn(800)
		return ws.Envelope{Event: "energyUpdate", Data: marshal(map[string]int{"consumption": watts})}
	case 4:
		return ws.Envelope{Event: "sensorData", Data: marshal(map[string]float64{
			"temperature": 25 + rand.Float64()*45,
			"humidity":    40 + rand.Float64()*40,
		})}
	default:
		return ws.Envelope{Event: "systemLog", Data: marshal(map[string]string{
			"type":    "info",
			"source":  "gateway",
			"message": "Periodic self-check completed",
		})}
	}
}

// serve runs one client session: periodic events out, command acks back.
func (sim *DeviceSimulator) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("client connected: %s", conn.RemoteAddr())

	// Reader: acknowledge every inbound command.
	acks := make(chan ws.Envelope, 8)
	go func() {
		defer close(acks)
		for {
			var env ws.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if sim.verbose {
				log.Printf("command received: %s", env.Event)
			}
			ack, _ := json.Marshal(map[string]interface{}{
				"command": env.Event,
				"success": rand.Intn(10) != 0, // occasional failure
				"error":   "",
			})
			acks <- ws.Envelope{Event: "command_ack", Data: ack}
		}
	}()

	ticker := time.NewTicker(sim.interval)
	defer ticker.Stop()

	for {
		select {
		case ack, ok := <-acks:
			if !ok {
				log.Printf("client disconnected: %s", conn.RemoteAddr())
				return
			}
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		case <-ticker.C:
			env := sim.nextEvent()
			if sim.verbose {
				log.Printf("emitting %s", env.Event)
			}
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("client disconnected: %s", conn.RemoteAddr())
				return
			}
		}
	}
}

func main() {
	addr := flag.String("addr", ":3001", "Listen address")
	interval := flag.Duration("interval", 2*time.Second, "Delay between emitted events")
	verbose := flag.Bool("verbose", false, "Log every emitted event")
	flag.Parse()

	sim := NewDeviceSimulator(*interval, *verbose)

	http.HandleFunc("/events", sim.serve)
	log.Printf("device simulator listening on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("listen failed: %v", err)
	}
}

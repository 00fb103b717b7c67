// Package monitoring turns a running testbench into an inspectable HTTP
// server: current cycle, per-port buffer occupancy, host resource usage,
// and an on-demand CPU profile, in the same shape as the upstream
// simulation monitor this one is adapted from.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	// Registers the pprof HTTP handlers on the default mux.
	_ "net/http/pprof"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
)

// Engine is the minimal surface of a testbench run a Monitor needs:
// a current cycle count and a way to tell whether the DUT has finished.
type Engine interface {
	CurrentCycle() uint64
	Finished() bool
}

// BufferStat is a point-in-time snapshot of one named queue's occupancy,
// reported by anything this monitor tracks (memory-port response FIFOs,
// TileLink channel-end pending queues).
type BufferStat struct {
	Name     string
	Size     int
	Capacity int
}

// BufferSource is implemented by anything whose fill level is worth
// reporting to the monitor.
type BufferSource interface {
	Name() string
	Size() int
	Capacity() int
}

// Monitor serves a small HTTP API describing the state of a running
// testbench. It owns no simulation state itself; RegisterEngine and
// RegisterBuffer wire it up to the run being observed.
type Monitor struct {
	engine  Engine
	portNum int

	buffersLock sync.Mutex
	buffers     []BufferSource
}

// NewMonitor creates a Monitor with no engine or buffers registered yet.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port to listen on; ports below 1000 are
// rejected in favour of an OS-assigned ephemeral port, since low ports
// are typically reserved for system services.
func (m *Monitor) WithPortNumber(port int) *Monitor {
	if port < 1000 {
		fmt.Fprintf(os.Stderr, "monitoring: refusing port %d, using a random port instead\n", port)
		port = 0
	}
	m.portNum = port
	return m
}

// RegisterEngine attaches the run this Monitor reports on.
func (m *Monitor) RegisterEngine(e Engine) { m.engine = e }

// RegisterBuffer adds a queue to the set reported by /api/buffers.
func (m *Monitor) RegisterBuffer(b BufferSource) {
	m.buffersLock.Lock()
	defer m.buffersLock.Unlock()
	m.buffers = append(m.buffers, b)
}

// Start launches the HTTP server in the background and returns the
// address it bound to.
func (m *Monitor) Start() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/buffers", m.listBuffers)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	actualAddr := ":0"
	if m.portNum >= 1000 {
		actualAddr = ":" + strconv.Itoa(m.portNum)
	}

	listener, err := net.Listen("tcp", actualAddr)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().String()
	fmt.Fprintf(os.Stderr, "monitoring: serving on http://%s\n", addr)

	go func() {
		if err := http.Serve(listener, r); err != nil {
			fmt.Fprintf(os.Stderr, "monitoring: server exited: %v\n", err)
		}
	}()

	return addr, nil
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if m.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	fmt.Fprintf(w, `{"cycle":%d,"finished":%t}`, m.engine.CurrentCycle(), m.engine.Finished())
}

func (m *Monitor) listBuffers(w http.ResponseWriter, _ *http.Request) {
	m.buffersLock.Lock()
	stats := make([]BufferStat, 0, len(m.buffers))
	for _, b := range m.buffers {
		stats = append(stats, BufferStat{Name: b.Name(), Size: b.Size(), Capacity: b.Capacity()})
	}
	m.buffersLock.Unlock()

	encoded, err := json.Marshal(stats)
	dieOnErr(err)
	_, err = w.Write(encoded)
	dieOnErr(err)
}

type resourceResponse struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	encoded, err := json.Marshal(resourceResponse{CPUPercent: cpuPercent, MemoryRSS: memInfo.RSS})
	dieOnErr(err)

	_, err = w.Write(encoded)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	dieOnErr(pprof.StartCPUProfile(buf))
	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	encoded, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(encoded)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		panic(err)
	}
}

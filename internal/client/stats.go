package client

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
)

// Route names used for latency tracking
const (
	RouteHeartbeat = "heartbeat"
	RouteQuote     = "quote"
	RoutePlace     = "place"
	RouteStatus    = "status"
	RouteCancel    = "cancel"
)

var routeNames = map[string]string{
	RouteHeartbeat: "Heartbeat",
	RouteQuote:     "Quote",
	RoutePlace:     "Place Order",
	RouteStatus:    "Order Status",
	RouteCancel:    "Cancel Order",
}

// routeStats tracks performance statistics for a venue endpoint
type routeStats struct {
	name       string
	durations  []float64 // milliseconds
	totalCalls int
	failures   int
}

// RouteSummary is the computed latency profile of one endpoint
type RouteSummary struct {
	Route    string
	Name     string
	Calls    int
	Failures int
	Min      time.Duration
	Max      time.Duration
	Mean     time.Duration
	Median   time.Duration
	P95      time.Duration
	P99      time.Duration
}

// Stats records per-route request latencies
type Stats struct {
	mu     sync.Mutex
	routes map[string]*routeStats
}

func newStats() *Stats {
	return &Stats{routes: make(map[string]*routeStats)}
}

func (s *Stats) record(route string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.routes[route]
	if !ok {
		name := routeNames[route]
		if name == "" {
			name = route
		}
		rs = &routeStats{name: name}
		s.routes[route] = rs
	}
	rs.durations = append(rs.durations, float64(d)/float64(time.Millisecond))
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// Calls returns how many requests were made to route
func (s *Stats) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.routes[route]; ok {
		return rs.totalCalls
	}
	return 0
}

// Summaries computes min, max, mean, median, 95th and 99th percentile
// latencies for every route that saw traffic, ordered by route name.
func (s *Stats) Summaries() []RouteSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RouteSummary, 0, len(s.routes))
	for route, rs := range s.routes {
		summary := RouteSummary{
			Route:    route,
			Name:     rs.name,
			Calls:    rs.totalCalls,
			Failures: rs.failures,
		}
		if len(rs.durations) > 0 {
			data := stats.Float64Data(rs.durations)
			summary.Min = millis(data.Min())
			summary.Max = millis(data.Max())
			summary.Mean = millis(data.Mean())
			summary.Median = millis(data.Median())
			summary.P95 = millis(data.Percentile(95))
			summary.P99 = millis(data.Percentile(99))
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

func millis(v float64, err error) time.Duration {
	if err != nil {
		return 0
	}
	return time.Duration(v * float64(time.Millisecond))
}

// Render writes the latency table to w
func (s *Stats) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, rs := range s.Summaries() {
		table.Append([]string{
			rs.Name,
			fmt.Sprintf("%d", rs.Calls),
			fmt.Sprintf("%d", rs.Failures),
			rs.Min.Round(time.Millisecond).String(),
			rs.Max.Round(time.Millisecond).String(),
			rs.Mean.Round(time.Millisecond).String(),
			rs.Median.Round(time.Millisecond).String(),
			rs.P95.Round(time.Millisecond).String(),
			rs.P99.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

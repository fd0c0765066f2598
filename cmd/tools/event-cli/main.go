package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xtaci/kcp-go/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annel0/climate-coil/internal/api"
	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/network"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		feedAddr   = flag.String("feed", "localhost:7778", "KCP event feed address")
		apiAddr    = flag.String("api", "http://localhost:8088", "debug API base URL")
		grpcAddr   = flag.String("grpc", "localhost:9090", "gRPC health address")
		command    = flag.String("cmd", "tail", "Command: tail, history, stats, health")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Regulator IDs filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m)")
		limit      = flag.Int("limit", 100, "Maximum number of events")
	)
	flag.Parse()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(*feedAddr, network.FeedRequest{
			Types:   parseStringList(*eventTypes),
			Sources: parseStringList(*sources),
		}, *limit)
	case "history":
		err = showHistory(*apiAddr, parseStringList(*eventTypes), *sources, *since, *limit)
	case "stats":
		err = showStats(*apiAddr)
	case "health":
		err = checkHealth(*grpcAddr)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, history, stats, health")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailEvents подписывается на поток KCP и печатает события. limit <= 0 - без ограничения.
func tailEvents(addr string, req network.FeedRequest, limit int) error {
	conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetStreamMode(true)
	conn.SetNoDelay(1, 20, 2, 1)

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	fmt.Printf("🎬 Tailing %s (types=%v sources=%v)\n", addr, req.Types, req.Sources)

	// Сервер отключает клиентов без пингов
	stop := make(chan struct{})
	defer close(stop)
	go keepalive(conn, stop)

	reader := bufio.NewReader(conn)
	count := 0
	for limit <= 0 || count < limit {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		var ev eventbus.Envelope
		if err := json.Unmarshal(line, &ev); err != nil {
			fmt.Printf("⚠️ bad line: %s", line)
			continue
		}
		printEvent(&ev)
		count++
	}
	fmt.Printf("\n📊 Total events: %d\n", count)
	return nil
}

// keepalive шлёт пустые строки, пока не закрыт stop
func keepalive(conn *kcp.UDPSession, stop <-chan struct{}) {
	ticker := time.NewTicker(network.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := conn.Write([]byte("\n")); err != nil {
				return
			}
		}
	}
}

// showHistory запрашивает последние события у отладочного API
func showHistory(base string, types []string, source, since string, limit int) error {
	start, err := parseSinceTime(since, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("invalid since time: %w", err)
	}
	q := url.Values{}
	q.Set("since", start.Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))
	if len(types) > 0 {
		q.Set("type", strings.Join(types, ","))
	}
	if source != "" {
		q.Set("source", source)
	}

	var events []eventbus.Envelope
	if err := getJSON(base+"/api/events?"+q.Encode(), &events); err != nil {
		return err
	}
	// API отдаёт новые первыми, печатаем по времени
	for i := len(events) - 1; i >= 0; i-- {
		printEvent(&events[i])
	}
	fmt.Printf("\n📊 Total events: %d\n", len(events))
	return nil
}

// showStats выводит статистику истории событий
func showStats(base string) error {
	var stats api.EventStats
	if err := getJSON(base+"/api/events/stats", &stats); err != nil {
		return err
	}
	fmt.Println("📊 Event statistics")
	if stats.Oldest != nil && stats.Newest != nil {
		fmt.Printf("Period: %s - %s\n", stats.Oldest.Format(timeFormat), stats.Newest.Format(timeFormat))
	}
	fmt.Printf("Total events: %d\n", stats.TotalEvents)
	fmt.Println("\nBy event type:")
	for t, n := range stats.EventTypes {
		fmt.Printf("  %s: %d events\n", t, n)
	}
	return nil
}

// checkHealth выполняет grpc.health.v1 Check для сервиса регуляторов
func checkHealth(addr string) error {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: network.RegulatorService})
	if err != nil {
		return err
	}
	fmt.Printf("💓 %s: %s\n", network.RegulatorService, resp.Status)
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		os.Exit(2)
	}
	return nil
}

func getJSON(u string, v interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", u, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] p%d %s\n",
		ev.Timestamp.Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.Priority,
		ev.ID)

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.TypeRegionFilled:
		var p eventbus.RegionFilledPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Size: %d Edges: %d Claimed: %d\n", p.Size, p.Edges, p.Claimed)
		}
	case eventbus.TypeRegionRepaired:
		var p eventbus.RegionRepairedPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Invalidated: %d Excised: %d Restored: %d Size: %d\n",
				p.Invalidated, p.Excised, p.Restored, p.Size)
		}
	case eventbus.TypeRegionReset:
		var p eventbus.RegionResetPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Cleared: %d Reason: %s\n", p.Cleared, p.Reason)
		}
	case eventbus.TypeInvariantViolated:
		var p eventbus.InvariantViolatedPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Error: %s\n", p.Error)
		}
	case eventbus.TypeAgentClimatized:
		var p eventbus.AgentClimatizedPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Agent: %d at %s Modifier: %s\n", p.AgentID, p.Position, p.Modifier)
		}
	case eventbus.TypeRegulatorPowered:
		var p eventbus.RegulatorPoweredPayload
		if ev.Decode(&p) == nil {
			fmt.Printf("  Active: %v\n", p.Active)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}

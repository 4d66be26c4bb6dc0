package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("BASKET_CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	if err := logger.Init(&cfg.Log, cfg.IsDevelopment()); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Named("stats")

	natsConn, err := nats.Connect(cfg.NATS.URL, nats.Name("stats"))
	if err != nil {
		log.Fatal("failed to connect to nats", zap.Error(err))
	}
	defer natsConn.Close()

	monitor := &statsMonitor{}

	for _, subject := range []string{"command.>", "event.>"} {
		if _, err := natsConn.Subscribe(subject, monitor.onMessage); err != nil {
			log.Fatal("failed to subscribe", zap.String("subject", subject), zap.Error(err))
		}
	}

	app := echo.New()
	app.HideBanner = true
	app.GET("/", monitor.report)
	app.GET("/json", monitor.reportJSON)
	log.Info("serving stats", zap.String("address", cfg.Stats.Address))
	if err := app.Start(cfg.Stats.Address); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

type statsMonitor struct {
	cmdCount         uint32
	eventsCount      uint32
	errorEventsCount uint32
}

type counts struct {
	Commands    uint32 `json:"commands"`
	Events      uint32 `json:"events"`
	ErrorEvents uint32 `json:"error_events"`
}

func (p *statsMonitor) onMessage(msg *nats.Msg) {
	p.count(msg.Subject)
}

func (p *statsMonitor) count(sub string) {
	if strings.HasPrefix(sub, "command.") {
		atomic.AddUint32(&p.cmdCount, 1)
	} else if strings.HasPrefix(sub, "event.") {
		atomic.AddUint32(&p.eventsCount, 1)
	}

	if strings.HasSuffix(sub, ".error") {
		atomic.AddUint32(&p.errorEventsCount, 1)
	}
}

func (p *statsMonitor) snapshot() counts {
	return counts{
		Commands:    atomic.LoadUint32(&p.cmdCount),
		Events:      atomic.LoadUint32(&p.eventsCount),
		ErrorEvents: atomic.LoadUint32(&p.errorEventsCount),
	}
}

func (p *statsMonitor) report(c echo.Context) error {
	s := p.snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "total commands: %d\n", s.Commands)
	fmt.Fprintf(&b, "total events: %d\n", s.Events)
	fmt.Fprintf(&b, "total error events: %d\n", s.ErrorEvents)
	if s.Events > 0 {
		fmt.Fprintf(&b, "total errors percentage: %.2f\n", float64(s.ErrorEvents)/float64(s.Events)*100)
	}
	return c.String(http.StatusOK, b.String())
}

func (p *statsMonitor) reportJSON(c echo.Context) error {
	return c.JSON(http.StatusOK, p.snapshot())
}

package demo

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/radiowatch/tetra-monitor/internal/callsign"
	"github.com/radiowatch/tetra-monitor/internal/model"
	"github.com/radiowatch/tetra-monitor/internal/monitor"
)

type seedTerminal struct {
	issi  string
	call  string
	local bool
}

var seeds = []seedTerminal{
	{"2145007", "EA5GVK", true},
	{"3020760", "VO1TR", false},
	{"3161484", "K3GLS", false},
	{"3211213", "N8EPF", false},
	{"3214363", "KD2FNL", false},
	{"3221095", "KF0VST", false},
	{"3222074", "K0SAV", false},
	{"4100038", "AP2AN", false},
	{"4220074", "A41MK", false},
	{"4220120", "A41SM", false},
}

var talkgroups = []string{"91", "262", "1", "10"}

type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 2 * time.Second
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval + 3*time.Second
	}
	return c
}

// Generator synthesizes plausible TETRA traffic through the same engine
// path the journal tail uses, for hosts without a live log stream.
type Generator struct {
	cfg      Config
	svc      *monitor.Service
	resolver *callsign.Resolver
	logger   *slog.Logger
	rng      *rand.Rand
}

func NewGenerator(cfg Config, svc *monitor.Service, resolver *callsign.Resolver, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:      cfg.withDefaults(),
		svc:      svc,
		resolver: resolver,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run seeds the network picture, announces it, then emits random call and
// voice-frame lines until ctx ends.
func (g *Generator) Run(ctx context.Context) error {
	g.seed()
	g.svc.EmitFullState()

	externals := lo.Filter(seeds, func(s seedTerminal, _ int) bool { return !s.local })
	for {
		interval := g.cfg.MinInterval + time.Duration(g.rng.Int63n(int64(g.cfg.MaxInterval-g.cfg.MinInterval)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		src := externals[g.rng.Intn(len(externals))]
		tg := talkgroups[g.rng.Intn(len(talkgroups))]
		slot := g.rng.Intn(4) + 1

		g.svc.ProcessLine(journalLine("call from ISSI " + src.issi + " to GSSI " + tg))
		g.svc.ProcessLine(journalLine("BrewEntity: voice frame #1 uuid=demo len=36 bytes ts=" + strconv.Itoa(slot)))
	}
}

func (g *Generator) seed() {
	now := time.Now().Format("15:04:05")
	terminals := make([]model.Terminal, 0, len(seeds))
	for _, s := range seeds {
		g.resolver.Seed(s.issi, s.call)
		tg := talkgroups[g.rng.Intn(len(talkgroups))]
		status := model.StatusExternal
		if s.local {
			status = model.StatusOnline
		}
		terminals = append(terminals, model.Terminal{
			ID:         s.issi,
			Status:     status,
			SelectedTG: model.TalkgroupLabel(tg),
			Groups:     []string{tg},
			IsLocal:    s.local,
			LastSeen:   now,
		})
	}
	// One local terminal starts detached, so the demo shows the Offline
	// rendering too.
	terminals[0].Status = model.StatusOffline
	terminals[0].SelectedTG = model.SelectedNone
	terminals[0].Groups = []string{}

	g.svc.Restore(terminals, nil, nil)
	g.logger.Info("demo traffic started", "terminals", len(terminals))
}

func journalLine(message string) string {
	body, _ := json.Marshal(map[string]string{
		"MESSAGE":              message,
		"__REALTIME_TIMESTAMP": strconv.FormatInt(time.Now().UnixMicro(), 10),
	})
	return string(body)
}

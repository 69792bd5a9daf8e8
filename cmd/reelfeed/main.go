package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/config"
	"github.com/abelbrown/reelfeed/internal/coord"
	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/mlfeed"
	"github.com/abelbrown/reelfeed/internal/otel"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/settle"
	"github.com/abelbrown/reelfeed/internal/sign"
	"github.com/abelbrown/reelfeed/internal/store"
	"github.com/abelbrown/reelfeed/internal/ui"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Data directory: ~/.reelfeed/
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	dataDir := filepath.Join(homeDir, ".reelfeed")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	dbPath := filepath.Join(dataDir, "reelfeed.db")

	// Open store
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	// Identity: decode the configured signing key, or mint a fresh one on
	// first run and persist it so the principal is stable across sessions.
	priv, principal, generated, err := loadIdentity(cfg)
	if err != nil {
		log.Fatalf("Failed to load identity: %v", err)
	}
	if generated {
		if err := cfg.Save(); err != nil {
			log.Printf("Warning: failed to persist generated identity: %v", err)
		}
	}

	// Observability: JSONL event log plus an in-memory ring for the debug
	// overlay. The logger never blocks the pipeline.
	logFile, err := os.OpenFile(filepath.Join(dataDir, "events.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer logFile.Close()
	logger := otel.NewLogger(logFile)
	defer logger.Close()
	ring := otel.NewRingBuffer(256)
	logger.SetRingBuffer(ring)
	logger.Info(otel.KindStartup, "main", "reelfeed starting")

	// Feed pipeline: hybrid ranked source behind the assembly controller.
	feedClient := mlfeed.NewClient(cfg.Services.FeedCacheURL)
	source := mlfeed.NewHybridSource(feedClient, principal, logger)
	controller := feed.NewController(feed.ControllerConfig{
		Source:      source,
		NSFWAllowed: cfg.Feed.NSFWAllowed,
		MaxQueue:    cfg.Feed.MaxQueue,
	})

	// Stake protocol: settlement client, wallet, and per-post session.
	settleClient := settle.NewClient(cfg.Services.SettlementURL, cfg.Services.SettlementJWT)
	wallet := bet.NewWallet(principal)
	session := bet.NewSession(settleClient, func(req sign.StakeRequest) (sign.Signature, error) {
		return sign.Sign(priv, req)
	}, principal, wallet, nil)

	coordinator := coord.NewCoordinator(controller, st, logger)
	viewport := feed.NewViewport(controller, cfg.Feed.FetchThreshold, coordinator.RequestFetch)

	// checkRound: establish the stake round state for the post the viewer
	// just landed on. Resolved rounds reconcile the wallet inside Check.
	checkRound := func(d *post.Details) tea.Cmd {
		return func() tea.Msg {
			id := d.Identity()
			state, err := session.Check(ctx, d)
			if err != nil {
				logger.Error(otel.KindBetError, "bet", err)
				return ui.RoundChecked{ID: id, State: state, Err: err}
			}
			logger.Emit(otel.Event{
				Level: otel.LevelDebug, Kind: otel.KindBetCheck, Comp: "bet",
				Post: id.String(), Msg: state.String(),
			})
			var outcome *bet.Outcome
			if p := session.ParticipationFor(id); p != nil {
				outcome = p.Outcome
				if err := st.SaveParticipation(principal, id, p); err != nil {
					logger.Error(otel.KindStoreError, "store", err)
				}
			}
			return ui.RoundChecked{
				ID:        id,
				State:     state,
				Remaining: session.TimeRemaining(d),
				Outcome:   outcome,
			}
		}
	}

	// placeStake: sign, submit, and settle one directional stake. Transport
	// failures return the round to open; the UI offers a retry.
	placeStake := func(d *post.Details, dir sign.Direction, amount uint64) tea.Cmd {
		return func() tea.Msg {
			id := d.Identity()
			logger.Emit(otel.Event{
				Level: otel.LevelInfo, Kind: otel.KindBetSubmit, Comp: "bet",
				Post: id.String(), Amount: amount, Msg: dir.String(),
			})
			outcome, err := session.PlaceStake(ctx, d, dir, amount)
			if err != nil {
				logger.Error(otel.KindBetError, "bet", err)
				return ui.StakeResolved{
					ID: id, Direction: dir, Amount: amount,
					Balance: wallet.Balance(), Err: err,
				}
			}
			result := "loss"
			if outcome.Won {
				result = "win"
			}
			logger.Emit(otel.Event{
				Level: otel.LevelInfo, Kind: otel.KindBetResolve, Comp: "bet",
				Post: id.String(), Amount: amount, Msg: result,
			})
			if p := session.ParticipationFor(id); p != nil {
				if err := st.SaveParticipation(principal, id, p); err != nil {
					logger.Error(otel.KindStoreError, "store", err)
				}
			}
			return ui.StakeResolved{
				ID: id, Direction: dir, Amount: amount,
				Outcome: outcome, Balance: wallet.Balance(),
			}
		}
	}

	app := ui.NewApp(viewport, checkRound, placeStake, ring)

	// Create program
	program := tea.NewProgram(app, tea.WithAltScreen())

	// Start background fetch loop (runs the initial fetch immediately)
	coordinator.Start(ctx, program)
	program.Send(ui.BalanceLoaded{Balance: wallet.Balance()})

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown
	logger.Info(otel.KindShutdown, "main", "reelfeed stopping")
	cancel()
	coordinator.Wait()
}

// loadIdentity returns the ed25519 signing key and principal from config,
// generating and recording a fresh identity when none is configured.
func loadIdentity(cfg *config.Config) (ed25519.PrivateKey, string, bool, error) {
	if cfg.Identity.SigningKeyHex != "" {
		raw, err := hex.DecodeString(cfg.Identity.SigningKeyHex)
		if err != nil {
			return nil, "", false, err
		}
		if len(raw) == ed25519.SeedSize {
			priv := ed25519.NewKeyFromSeed(raw)
			return priv, principalFor(cfg, priv), false, nil
		}
		priv := ed25519.PrivateKey(raw)
		return priv, principalFor(cfg, priv), false, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", false, err
	}
	cfg.Identity.SigningKeyHex = hex.EncodeToString(priv.Seed())
	if cfg.Identity.Principal == "" {
		cfg.Identity.Principal = hex.EncodeToString(pub[:8])
	}
	return priv, cfg.Identity.Principal, true, nil
}

// principalFor prefers the configured principal and falls back to a
// fingerprint of the public key.
func principalFor(cfg *config.Config, priv ed25519.PrivateKey) string {
	if cfg.Identity.Principal != "" {
		return cfg.Identity.Principal
	}
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub[:8])
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/config"
	"github.com/kiko-beam/beamlink/internal/call"
	"github.com/kiko-beam/beamlink/internal/contacts"
	"github.com/kiko-beam/beamlink/internal/dailyco"
	"github.com/kiko-beam/beamlink/internal/models"
	"github.com/kiko-beam/beamlink/internal/signalclient"
)

func main() {
	var (
		relayURL    string
		contactName string
		roomID      string
		displayName string
		addContact  string
		listOnly    bool
		cleanupDays int
	)
	flag.StringVar(&relayURL, "relay", "ws://localhost:8080/ws/signal", "signaling relay URL")
	flag.StringVar(&contactName, "contact", "", "contact to call (free-text, fuzzy matched)")
	flag.StringVar(&roomID, "room", "", "room id to call directly (overrides -contact)")
	flag.StringVar(&displayName, "name", "Beam User", "display name in the call room")
	flag.StringVar(&addContact, "add", "", "add a contact with a fresh room id, then exit")
	flag.BoolVar(&listOnly, "list", false, "list contacts, then exit")
	flag.IntVar(&cleanupDays, "cleanup", 0, "remove contacts idle for this many days, then exit")
	flag.Parse()

	w := zerolog.ConsoleWriter{Out: os.Stderr}
	log := zerolog.New(w).With().Timestamp().Logger()

	cfg := config.Load()

	store, err := contacts.Open(cfg.ContactsDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open contact store")
	}
	defer store.Close()

	if addContact != "" {
		c, err := store.Add(addContact, "", models.ContactStandard)
		if err != nil {
			log.Fatal().Err(err).Str("name", addContact).Msg("failed to add contact")
		}
		fmt.Printf("added %s -> %s\n", c.Name, c.ID)
		return
	}

	if cleanupDays > 0 {
		n, err := store.Cleanup(time.Duration(cleanupDays) * 24 * time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("contact cleanup failed")
		}
		fmt.Printf("removed %d stale contact(s)\n", n)
		return
	}

	if listOnly {
		list, err := store.List()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list contacts")
		}
		for _, c := range list {
			fmt.Printf("%-24s %-28s %s\n", c.Name, c.ID, c.ContactType)
		}
		return
	}

	if contactName == "" && roomID == "" {
		fmt.Fprintln(os.Stderr, "who to call? use -contact <name> or -room <id>")
		os.Exit(2)
	}

	controller := call.NewController(call.Options{
		Contacts:   store,
		Rooms:      dailyco.New(cfg.Daily, log),
		NewSession: func() dailyco.Session { return dailyco.NewHeadlessSession(log) },
		OpenSignaling: func(ctx context.Context) (call.Signaler, error) {
			return signalclient.Dial(ctx, relayURL, log)
		},
		DisplayName: displayName,
		Timeout:     cfg.CallTimeout,
		Logger:      log,
	})
	defer controller.Close()

	ctx := context.Background()
	if roomID != "" {
		err = controller.CallRoom(ctx, roomID)
	} else {
		err = controller.Call(ctx, contactName)
	}
	if err != nil {
		switch err {
		case contacts.ErrNotFound:
			fmt.Fprintf(os.Stderr, "no contact matches %q; add one with -add %q\n", contactName, contactName)
		case contacts.ErrEmptyName:
			fmt.Fprintln(os.Stderr, "a contact name is required")
		default:
			fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
		}
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case ev := <-controller.Events():
			switch ev.Kind {
			case call.EventStateChanged:
				fmt.Printf("state: %s\n", ev.State)
			case call.EventConnected:
				fmt.Println("connected")
			case call.EventPeerJoined:
				fmt.Printf("peer joined: %s\n", ev.Peer)
			case call.EventPeerLeft:
				fmt.Printf("peer left: %s\n", ev.Peer)
			case call.EventEnded:
				fmt.Println("call ended")
				return
			case call.EventFailed:
				fmt.Fprintf(os.Stderr, "call failed (%s): %v\n", ev.Category, ev.Err)
				os.Exit(1)
			}
		case <-quit:
			controller.End()
		}
	}
}

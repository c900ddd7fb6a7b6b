package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/prefs"
	"github.com/confapp/schedstore/internal/store"
	"github.com/confapp/schedstore/internal/tracks"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "List tracks, grouped by filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st := store.New(cfg.DatabasePath, &store.Config{Logger: newLogger(cfg, "[store] ")})
		defer st.Close()

		pf, err := prefs.Open(cfg.PrefsPath, newLogger(cfg, "[prefs] "))
		if err != nil {
			return fmt.Errorf("failed to open prefs: %w", err)
		}

		all, err := store.ReadSync(st, store.AllTracksOrderedByName{})
		if err != nil {
			return fmt.Errorf("failed to read tracks: %w", err)
		}

		ix := tracks.NewIndex()
		ix.Load(all, pf.FavoriteTracks())

		for _, f := range ix.Filters() {
			fmt.Printf("%s:\n", f)
			for _, t := range ix.Tracks(f) {
				marker := " "
				if ix.IsFavorite(t.Name) {
					marker = "*"
				}
				fmt.Printf("  %s %s (day %d)\n", marker, t.Name, t.Day)
			}
		}
		return nil
	},
}

var (
	flagEventsTrack  string
	flagEventsPerson int64

	eventsCmd = &cobra.Command{
		Use:   "events [id...]",
		Short: "List events by track, person, or identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st := store.New(cfg.DatabasePath, &store.Config{Logger: newLogger(cfg, "[store] ")})
			defer st.Close()

			var events []model.Event
			switch {
			case flagEventsTrack != "":
				events, err = store.ReadSync(st, store.EventsByTrack{Name: flagEventsTrack})
			case flagEventsPerson != 0:
				events, err = store.ReadSync(st, store.EventsByPerson{ID: flagEventsPerson})
			case len(args) > 0:
				ids := make([]int64, 0, len(args))
				for _, arg := range args {
					id, parseErr := strconv.ParseInt(arg, 10, 64)
					if parseErr != nil {
						return fmt.Errorf("invalid event id %q", arg)
					}
					ids = append(ids, id)
				}
				events, err = store.ReadSync(st, store.EventsByIdentifiers{IDs: ids})
			default:
				return fmt.Errorf("specify --track, --person, or event ids")
			}
			if err != nil {
				return fmt.Errorf("failed to read events: %w", err)
			}

			printEvents(events)
			return nil
		},
	}
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles, abstracts, tracks and people",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st := store.New(cfg.DatabasePath, &store.Config{Logger: newLogger(cfg, "[store] ")})
		defer st.Close()

		query := ""
		for i, arg := range args {
			if i > 0 {
				query += " "
			}
			query += arg
		}

		events, err := store.ReadSync(st, store.EventsForSearch{Query: query})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		printEvents(events)
		return nil
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <add|remove> <track-name>",
	Short: "Add or remove a favorite track",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pf, err := prefs.Open(cfg.PrefsPath, newLogger(cfg, "[prefs] "))
		if err != nil {
			return fmt.Errorf("failed to open prefs: %w", err)
		}

		switch args[0] {
		case "add":
			pf.AddFavoriteTrack(args[1])
		case "remove":
			pf.RemoveFavoriteTrack(args[1])
		default:
			return fmt.Errorf("unknown action %q (want add or remove)", args[0])
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&flagEventsTrack, "track", "", "List events in the given track")
	eventsCmd.Flags().Int64Var(&flagEventsPerson, "person", 0, "List events featuring the given person id")
}

func printEvents(events []model.Event) {
	for _, ev := range events {
		fmt.Printf("%6d  %s  %-8s  %s", ev.ID, ev.Date.Format("Mon 15:04"), ev.Room, ev.Title)
		if len(ev.People) > 0 {
			fmt.Printf("  (%s", ev.People[0].Name)
			if len(ev.People) > 1 {
				fmt.Printf(" +%d", len(ev.People)-1)
			}
			fmt.Print(")")
		}
		fmt.Println()
	}
	if len(events) == 0 {
		fmt.Println("No events.")
	}
}

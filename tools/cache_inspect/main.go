// accolade/tools/cache_inspect/main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"rgehrsitz/accolade/pkg/cache"
)

const usage = `Usage: cache_inspect [flags] <command> [args]

Commands:
  list [badge-id]              list counters, optionally for one badge
  get <badge-id> <candidate>   show one counter
  set <badge-id> <candidate> <value>
  reset <badge-id> [candidate] delete one counter or every counter of a badge
`

// store is what the inspector needs from a counter cache.
type store interface {
	cache.Cache
	cache.Inspector
}

func counterPrefix(badgeID string) string {
	if badgeID == "" {
		return cache.CounterPrefix
	}
	return cache.MessagesCountKey(badgeID, "")
}

func processCommand(ctx context.Context, s store, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "list":
		badgeID := ""
		if len(args) > 0 {
			badgeID = args[0]
		}
		keys, err := s.Keys(ctx, counterPrefix(badgeID))
		if err != nil {
			return err
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := s.Get(ctx, k)
			if errors.Is(err, cache.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%d\n", strings.TrimPrefix(k, cache.CounterPrefix), v)
		}
		return nil

	case "get":
		if len(args) != 2 {
			return errors.New("get needs <badge-id> <candidate>")
		}
		v, err := s.Get(ctx, cache.MessagesCountKey(args[0], args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		if len(args) != 3 {
			return errors.New("set needs <badge-id> <candidate> <value>")
		}
		v, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		key := cache.MessagesCountKey(args[0], args[1])
		if err := s.Set(ctx, key, v, cache.CounterTTL); err != nil {
			return err
		}
		fmt.Fprintf(out, "Set %s to %d\n", key, v)
		return nil

	case "reset":
		var keys []string
		switch len(args) {
		case 1:
			found, err := s.Keys(ctx, counterPrefix(args[0]))
			if err != nil {
				return err
			}
			keys = found
		case 2:
			keys = []string{cache.MessagesCountKey(args[0], args[1])}
		default:
			return errors.New("reset needs <badge-id> [candidate]")
		}
		if len(keys) == 0 {
			fmt.Fprintln(out, "Nothing to reset")
			return nil
		}
		if err := s.Delete(ctx, keys...); err != nil {
			return err
		}
		fmt.Fprintf(out, "Reset %d counter(s)\n", len(keys))
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address")
	password := flag.String("password", "", "Redis password")
	db := flag.Int("db", 0, "Redis database")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := cache.NewRedisCache(ctx, *addr, *password, *db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rc.Close()

	if err := processCommand(ctx, rc, os.Stdout, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
}

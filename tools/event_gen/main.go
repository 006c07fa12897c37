// accolade/tools/event_gen/main.go

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/transport"
)

// eventKinds are the topic suffixes generated events use, with a body
// builder for each.
var eventKinds = []struct {
	suffix string
	body   func(f *gofakeit.Faker, user string) map[string]any
}{
	{"fas.user.create", func(f *gofakeit.Faker, user string) map[string]any {
		return map[string]any{"user": user}
	}},
	{"buildsys.build.state.change", func(f *gofakeit.Faker, user string) map[string]any {
		return map[string]any{"owner": user, "name": f.Word(), "new": f.Number(0, 4), "build_id": f.Number(1, 1_000_000)}
	}},
	{"git.receive", func(f *gofakeit.Faker, user string) map[string]any {
		return map[string]any{"commit": map[string]any{"repo": f.Word(), "username": user, "email": f.Email()}}
	}},
	{"bodhi.update.comment", func(f *gofakeit.Faker, user string) map[string]any {
		return map[string]any{"comment": map[string]any{"user": map[string]any{"name": user}, "karma": f.Number(-1, 1)}}
	}},
	{"irc.karma", func(f *gofakeit.Faker, user string) map[string]any {
		return map[string]any{"agent": user, "recipient": f.Username(), "vote": 1}
	}},
}

type generator struct {
	faker  *gofakeit.Faker
	users  []string
	prefix string
}

func newGenerator(seed uint64, numUsers int, prefix string) *generator {
	f := gofakeit.New(seed)
	users := make([]string, numUsers)
	for i := range users {
		users[i] = f.Username()
	}
	return &generator{faker: f, users: users, prefix: prefix}
}

func (g *generator) next() *event.Event {
	kind := eventKinds[g.faker.Number(0, len(eventKinds)-1)]
	user := g.faker.RandomString(g.users)
	return &event.Event{
		ID:        g.faker.UUID(),
		Topic:     g.prefix + "." + kind.suffix,
		Timestamp: time.Now().UTC(),
		Body:      kind.body(g.faker, user),
		AgentName: user,
		Usernames: []string{user},
	}
}

// writeEvents writes n events as JSON lines.
func writeEvents(w io.Writer, g *generator, n int) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < n; i++ {
		data, err := g.next().Encode()
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// publishEvents publishes n events at rate per second.
func publishEvents(ctx context.Context, t transport.Transport, channel string, g *generator, n, rate int) error {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for i := 0; i < n; i++ {
		data, err := g.next().Encode()
		if err != nil {
			return err
		}
		if err := t.Publish(ctx, channel, data); err != nil {
			return fmt.Errorf("publish event %d: %w", i, err)
		}
		if i < n-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return nil
}

func main() {
	count := flag.Int("n", 100, "Number of events to generate")
	numUsers := flag.Int("users", 20, "Size of the user pool")
	prefix := flag.String("prefix", "org.fedoraproject.prod", "Topic prefix")
	seed := flag.Uint64("seed", 0, "Random seed (0 picks one)")
	redisAddr := flag.String("redis", "", "Publish to this Redis server instead of writing JSON lines")
	channel := flag.String("channel", "accolade_events", "Redis channel to publish to")
	rate := flag.Int("rate", 10, "Events published per second")
	flag.Parse()

	g := newGenerator(*seed, *numUsers, *prefix)

	if *redisAddr == "" {
		if err := writeEvents(os.Stdout, g, *count); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing events: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()
	t, err := transport.NewRedis(ctx, *redisAddr, "", 0, []string{*channel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to Redis: %v\n", err)
		os.Exit(1)
	}
	defer t.Close()

	if err := publishEvents(ctx, t, *channel, g, *count, *rate); err != nil {
		fmt.Fprintf(os.Stderr, "Error publishing events: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Published %d events to %s on %s\n", *count, *channel, *redisAddr)
}

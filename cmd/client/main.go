// Command client is a headless peer for watching a world without a
// renderer: it joins, keeps its heartbeat flowing, prints chat and a
// periodic interpolated view of the entities around it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	server "driftisle/server"
	"driftisle/server/client"
)

func main() {
	var (
		addr    = flag.String("addr", server.DefaultAddr, "server UDP address")
		say     = flag.String("say", "", "chat line to send after joining")
		every   = flag.Duration("print-every", time.Second, "interval between world printouts")
		timeout = flag.Duration("join-timeout", 10*time.Second, "how long to wait for the join snapshot")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	peer, err := client.Dial(*addr, client.Options{})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer peer.Close()

	joinCtx, cancel := context.WithTimeout(ctx, *timeout)
	join, err := peer.Join(joinCtx)
	cancel()
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("joined %q as entity %d at tick %d with %d other entities\n",
		join.WorldName, join.YourID, join.Tick, len(join.Islands))

	if *say != "" {
		if err := peer.SendChat(*say); err != nil {
			log.Printf("chat rejected: %v", err)
		}
	}

	frame := time.NewTicker(server.TickInterval)
	defer frame.Stop()
	report := time.NewTicker(*every)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frame.C:
			peer.Poll(now)
			for _, msg := range peer.Chats() {
				fmt.Printf("chat: %s\n", msg.Text)
			}
		case now := <-report.C:
			tick, _ := peer.Clock().Now(now)
			fmt.Printf("tick %d, %d entities\n", tick, peer.EntityCount())
			for _, view := range peer.Positions(now) {
				marker := ""
				if view.ID == peer.YourID() {
					marker = " (you)"
				}
				fmt.Printf("  %s %d at (%.2f, %.2f)%s\n", view.Visual, view.ID, view.Pos.X, view.Pos.Y, marker)
			}
		}
	}
}

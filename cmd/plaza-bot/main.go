// plaza-bot is a headless participant: it joins a room through a
// gateway, wanders around, and chats on a cadence. Useful for populating
// rooms and for smoke-testing a deployment end to end.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"plaza/server/internal/engine"
	"plaza/server/internal/gateway/wsstore"
	"plaza/server/logging"
	"plaza/server/logging/sinks"
)

var directions = []engine.Direction{
	engine.DirectionUp,
	engine.DirectionDown,
	engine.DirectionLeft,
	engine.DirectionRight,
}

var colors = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4"}

var phrases = []string{
	"hello!",
	"anyone around?",
	"nice weather in the plaza today",
	"brb",
	"who wants to head to the cafe?",
	"o/",
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "gateway websocket URL")
	name := flag.String("name", "", "display name (random when empty)")
	room := flag.String("room", "plaza", "room to join")
	chatEvery := flag.Duration("chat-every", 15*time.Second, "average interval between messages")
	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	username := *name
	if username == "" {
		username = names[rng.Intn(len(names))]
	}
	color := colors[rng.Intn(len(colors))]

	logCfg := logging.DefaultConfig()
	router := logging.NewRouter(nil, logCfg, []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := wsstore.Dial(ctx, *addr, nil)
	cancel()
	if err != nil {
		log.Fatalf("failed to dial gateway: %v", err)
	}

	session := engine.NewRoomSession(conn, nil, router, engine.DefaultConfig(), username, color)
	if err := session.Enter(*room); err != nil {
		log.Fatalf("failed to enter room %s: %v", *room, err)
	}
	log.Printf("%s wandering in %s", username, *room)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	wander := time.NewTicker(2 * time.Second)
	defer wander.Stop()
	chat := time.NewTicker(*chatEvery)
	defer chat.Stop()

	var held engine.Direction
	for {
		select {
		case <-stop:
			log.Printf("leaving %s", *room)
			session.Leave()
			conn.Close()
			return
		case <-wander.C:
			if held != "" {
				session.KeyUp(held)
			}
			held = directions[rng.Intn(len(directions))]
			session.KeyDown(held)
		case <-chat.C:
			session.Submit(phrases[rng.Intn(len(phrases))])
		}
	}
}

var names = []string{"ada", "grace", "linus", "dennis", "barbara", "ken", "edsger", "radia"}

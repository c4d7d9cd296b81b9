// File: main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"rotateCaptcha/captcha"
)

func main() {
	app := &cli.Command{
		Name:  "rotate-captcha",
		Usage: "scriptless rotation-captcha demo server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":28416", Usage: "listen address"},
			&cli.StringFlag{Name: "secret", Required: true, Usage: "HMAC secret for challenge tokens"},
			&cli.DurationFlag{Name: "ttl", Value: time.Minute, Usage: "challenge validity window"},
			&cli.IntFlag{Name: "max-attempts", Value: 3, Usage: "verification attempts per challenge"},
			&cli.IntFlag{Name: "cell-size", Value: 150, Usage: "tile edge length in pixels"},
			&cli.StringFlag{Name: "format", Value: "jpeg", Usage: "sprite codec: jpeg or png"},
			&cli.IntFlag{Name: "quality", Value: 70, Usage: "jpeg quality 1..100"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	opts := captcha.DefaultGenerationOptions()
	opts.CellSize = int(c.Int("cell-size"))
	opts.Quality = int(c.Int("quality"))
	if c.String("format") == "png" {
		opts.Format = captcha.SpritePNG
	}

	ttl := c.Duration("ttl")
	registry := captcha.NewInMemoryRegistry(ttl, int(c.Int("max-attempts")))

	mgr, err := captcha.NewManager([]byte(c.String("secret")), ttl, registry, opts, captcha.DefaultNoiseOptions())
	if err != nil {
		return err
	}

	s := &server{mgr: mgr}
	http.Handle("/", http.FileServer(http.Dir("./static")))
	http.HandleFunc("/api/challenge/start", s.handleStart)
	http.HandleFunc("/api/challenge/verify", s.handleVerify)

	addr := c.String("addr")
	log.Println("Server listening on " + addr)
	return http.ListenAndServe(addr, nil)
}

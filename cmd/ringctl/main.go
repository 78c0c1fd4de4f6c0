// Command ringctl is a diagnostic CLI for exercising a ring directly,
// without a broker: it creates (or attaches to) a ring, round-trips a test
// message through it, and reports the slot geometry it observed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/localipc/shmring/internal/config"
	"github.com/localipc/shmring/internal/obslog"
	"github.com/localipc/shmring/ring"
)

func main() {
	var (
		name      = flag.String("name", "", "ring name, e.g. /ipc_demo_1234 (default: a generated name when creating)")
		attach    = flag.Bool("attach", false, "attach to an existing ring instead of creating one")
		slotCount = flag.Uint("slots", 0, "slot count when creating (default from config)")
		slotSize  = flag.Uint("slot-size", 0, "slot size in bytes when creating (default from config)")
		unlink    = flag.Bool("unlink", false, "unlink the ring's resources after the round trip (owner only)")
		message   = flag.String("message", "ringctl diagnostic message", "payload to write when acting as producer")
	)
	flag.Parse()

	if *name == "" {
		if *attach {
			fmt.Fprintln(os.Stderr, "ringctl: -name is required with -attach")
			os.Exit(1)
		}
		generated := "/ipc_" + uuid.NewString()
		name = &generated
	}

	cfg := config.Load()
	log := obslog.New(cfg.LogLevel)
	defer log.Sync()

	ring.AttachRetries = cfg.AttachRetries
	ring.AttachInterval = cfg.AttachInterval

	var r *ring.Ring
	var err error
	if *attach {
		log.Sugar().Infow("attaching", "ring", *name)
		r, err = ring.Attach(*name)
	} else {
		sc := uint32(*slotCount)
		if sc == 0 {
			sc = cfg.SlotCount
		}
		ss := uint32(*slotSize)
		if ss == 0 {
			ss = cfg.SlotSize
		}
		log.Sugar().Infow("creating", "ring", *name, "slots", sc, "slot_size", ss)
		r, err = ring.Create(*name, sc, ss)
	}
	if err != nil {
		log.Sugar().Errorw("ring unavailable", "ring", *name, "error", err)
		os.Exit(1)
	}
	defer r.Close()

	fmt.Printf("ring %s: owner=%v slots=%d slot_size=%d\n", r.Name(), r.IsOwner(), r.SlotCount(), r.SlotSize())

	if r.IsOwner() {
		if err := r.WriteMessage([]byte(*message)); err != nil {
			log.Sugar().Errorw("write failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d bytes\n", len(*message))
	}

	got, err := r.ReadMessage()
	if err != nil {
		log.Sugar().Errorw("read failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("read %d bytes: %q\n", len(got), got)

	if *unlink {
		if err := r.UnlinkResources(); err != nil {
			log.Sugar().Errorw("unlink failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("unlinked")
	}
}

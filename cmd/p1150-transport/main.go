// Command p1150-transport is a thin wiring CLI over the transport engine:
// it opens a serial port, optionally loads a symbol table for decoding log
// frames, and logs every inbound frame to stderr until SIGINT/SIGTERM; it
// sends nothing on the outbound queue. The instrument command
// API, calibration sequencing and plotting this device needs all live
// upstream of this binary — out of scope here.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/sistemicorp/P1150/internal/logging"
	"github.com/sistemicorp/P1150/logframe"
	"github.com/sistemicorp/P1150/queue"
	"github.com/sistemicorp/P1150/transport"
)

type options struct {
	Port        string `long:"port" short:"p" required:"true" description:"serial device path"`
	Baud        int    `long:"baud" short:"b" default:"115200" description:"baud rate"`
	SymbolTable string `long:"symbols" short:"s" description:"path to a CBOR log-frame symbol table"`
	Verbose     bool   `long:"verbose" short:"v" description:"trace-level logging"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := logging.LevelInfo
	if opts.Verbose {
		level = logging.LevelTrace
	}
	log := logging.New(os.Stderr, level)

	var dataset *logframe.Dataset
	if opts.SymbolTable != "" {
		ds, err := logframe.Load(opts.SymbolTable)
		if err != nil {
			log.Error("failed to load symbol table", "path", opts.SymbolTable, "err", err)
			os.Exit(1)
		}
		dataset = ds
		log.Info("symbol table loaded", "path", opts.SymbolTable, "target", ds.Target())
	}

	inbound := queue.NewChannel(1024)
	outbound := queue.NewChannel(1024)

	mgr := transport.NewManager(transport.Config{
		PortName: opts.Port,
		Baud:     opts.Baud,
		Inbound:  inbound,
		Outbound: outbound,
		Logger:   log.WithComponent("transport"),
	})

	if err := mgr.Start(); err != nil {
		log.Error("failed to start transport", "err", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go drainInbound(log, dataset, inbound, sig)

	<-sig
	log.Info("shutting down")
	if err := mgr.Shutdown(); err != nil {
		log.Error("shutdown error", "err", err)
		os.Exit(1)
	}
}

// drainInbound logs every inbound frame, decoding it through dataset when
// one was loaded; otherwise it just reports the raw length.
func drainInbound(log *logging.Logger, dataset *logframe.Dataset, inbound *queue.Channel, stop <-chan os.Signal) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, ok := inbound.PopTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		if dataset == nil {
			log.Info("frame received", "len", len(frame))
			continue
		}
		// The instrument command layer (out of scope here) is what
		// actually knows each frame's address; this thin collaborator
		// has no way to recover it from raw bytes alone.
		rec := dataset.Decode(dataset.Target(), 0, frame)
		log.Info(rec.Text, "level", rec.Level, "file", rec.File, "line", rec.Line)
	}
}

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"matchbook/infra/codec"
	"matchbook/infra/journal"
	"matchbook/service"
)

func main() {
	var (
		dir            string
		codecName      string
		showSeq        bool
		truncateBefore uint64
	)
	flag.StringVar(&dir, "dir", "./data/journal", "Journal directory")
	flag.StringVar(&codecName, "codec", "json", "Codec the journal was written with: json or proto")
	flag.BoolVar(&showSeq, "seq", false, "Prefix each line with its journal sequence")
	flag.Uint64Var(&truncateBefore, "truncate-before", 0, "Delete whole segments below this sequence instead of printing")
	flag.Parse()

	if truncateBefore > 0 {
		j, err := journal.Open(journal.Config{Dir: dir})
		if err != nil {
			fail(err)
		}
		n, err := j.TruncateBefore(truncateBefore)
		if cerr := j.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fail(err)
		}
		fmt.Printf("removed %d segment(s)\n", n)
		return
	}

	c, err := codec.ByName(codecName)
	if err != nil {
		fail(err)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	emit := func(seq uint64, line string) error {
		if showSeq {
			_, err := fmt.Fprintf(out, "%d\t%s\n", seq, line)
			return err
		}
		_, err := fmt.Fprintln(out, line)
		return err
	}

	r := &service.JournalReader{
		Codec: c,
		OnOrder: func(seq uint64, m codec.OrderMessage) error {
			return emit(seq, codec.FormatOrder(m))
		},
		OnTrade: func(seq uint64, m codec.TradeMessage) error {
			return emit(seq, codec.FormatTrade(m))
		},
	}
	if _, err := r.Read(dir); err != nil {
		out.Flush()
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "journal:", err)
	os.Exit(1)
}

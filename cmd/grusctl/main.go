// Command grusctl is a thin inspection and scripting front end over
// package grus. It is explicitly outside the core library's contract
// and exists only to exercise the public API end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	grus "github.com/metent/grus-lib"
	"github.com/metent/grus-lib/dateparse"
	"github.com/metent/grus-lib/kv/boltkv"

	log "github.com/erigontech/erigon-lib/log/v3"
)

func main() {
	app := &cli.App{
		Name:  "grusctl",
		Usage: "inspect and script a grus task tree",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: "grus.db", Usage: "path to the store file"},
		},
		Commands: []*cli.Command{
			addCmd, mvUpCmd, mvDownCmd, shareCmd, cutCmd, rmCmd, treeCmd, sessionsCmd, statsCmd, dueCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("grusctl", "err", err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (*grus.Store, error) {
	return grus.Open(c.String("db"), 7)
}

func parseU64(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

var addCmd = &cli.Command{
	Name:      "add",
	Usage:     "add a child node under pid",
	ArgsUsage: "<pid> <name>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return cli.Exit("usage: grusctl add <pid> <name>", 1)
		}
		pid, err := parseU64(c.Args().Get(0))
		if err != nil {
			return err
		}
		store, err := openStore(c)
		if err != nil {
			return err
		}
		defer store.Close()
		w, err := store.Writer(context.Background())
		if err != nil {
			return err
		}
		id, err := w.AddChild(pid, c.Args().Get(1))
		if err != nil {
			w.Rollback()
			return err
		}
		if err := w.Commit(); err != nil {
			return err
		}
		log.Info("added node", "id", id, "pid", pid)
		return nil
	},
}

var rmCmd = &cli.Command{
	Name:      "rm",
	Usage:     "remove a parentage, cascading if it was the last one",
	ArgsUsage: "<pid> <id>",
	Action: func(c *cli.Context) error {
		return withWriter(c, func(w *grus.Writer) error {
			pid, id, err := two(c)
			if err != nil {
				return err
			}
			return w.Delete(pid, id)
		})
	},
}

var mvUpCmd = &cli.Command{
	Name:      "mv-up",
	Usage:     "move a node up within its parent's sibling list",
	ArgsUsage: "<pid> <id>",
	Action: func(c *cli.Context) error {
		return withWriter(c, func(w *grus.Writer) error {
			pid, id, err := two(c)
			if err != nil {
				return err
			}
			return w.MoveUp(pid, id)
		})
	},
}

var mvDownCmd = &cli.Command{
	Name:      "mv-down",
	Usage:     "move a node down within its parent's sibling list",
	ArgsUsage: "<pid> <id>",
	Action: func(c *cli.Context) error {
		return withWriter(c, func(w *grus.Writer) error {
			pid, id, err := two(c)
			if err != nil {
				return err
			}
			return w.MoveDown(pid, id)
		})
	},
}

var shareCmd = &cli.Command{
	Name:      "share",
	Usage:     "add src as an additional child of dest",
	ArgsUsage: "<src> <dest>",
	Action: func(c *cli.Context) error {
		return withWriter(c, func(w *grus.Writer) error {
			src, dest, err := two(c)
			if err != nil {
				return err
			}
			ok, err := w.Share(src, dest)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn("share refused: cycle or already a direct child", "src", src, "dest", dest)
			}
			return nil
		})
	},
}

var cutCmd = &cli.Command{
	Name:      "cut",
	Usage:     "re-parent src from src_pid to dest",
	ArgsUsage: "<src_pid> <src> <dest>",
	Action: func(c *cli.Context) error {
		return withWriter(c, func(w *grus.Writer) error {
			if c.Args().Len() != 3 {
				return cli.Exit("usage: grusctl cut <src_pid> <src> <dest>", 1)
			}
			srcPid, err := parseU64(c.Args().Get(0))
			if err != nil {
				return err
			}
			src, err := parseU64(c.Args().Get(1))
			if err != nil {
				return err
			}
			dest, err := parseU64(c.Args().Get(2))
			if err != nil {
				return err
			}
			ok, err := w.Cut(srcPid, src, dest)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn("cut refused: cycle or already a direct child of dest", "src", src, "dest", dest)
			}
			return nil
		})
	},
}

var treeCmd = &cli.Command{
	Name:      "tree",
	Usage:     "pretty-print the subtree rooted at pid (0 for the whole forest)",
	ArgsUsage: "[pid]",
	Action: func(c *cli.Context) error {
		pid := uint64(0)
		if c.Args().Len() == 1 {
			p, err := parseU64(c.Args().Get(0))
			if err != nil {
				return err
			}
			pid = p
		}
		store, err := openStore(c)
		if err != nil {
			return err
		}
		defer store.Close()
		r, err := store.Reader(context.Background())
		if err != nil {
			return err
		}
		defer r.Close()
		return printTree(r, pid, 0)
	},
}

func printTree(r *grus.Reader, pid uint64, depth int) error {
	it, err := r.ChildIDs(pid)
	if err != nil {
		return err
	}
	for {
		id, ok := it.Next()
		if !ok {
			return it.Err()
		}
		name, _, err := r.Name(id)
		if err != nil {
			return err
		}
		fmt.Printf("%*s- %s (#%d)\n", depth*2, "", name, id)
		if err := printTree(r, id, depth+1); err != nil {
			return err
		}
	}
}

var sessionsCmd = &cli.Command{
	Name:      "sessions",
	Usage:     "list sessions attached to id",
	ArgsUsage: "<id>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return cli.Exit("usage: grusctl sessions <id>", 1)
		}
		id, err := parseU64(c.Args().Get(0))
		if err != nil {
			return err
		}
		store, err := openStore(c)
		if err != nil {
			return err
		}
		defer store.Close()
		r, err := store.Reader(context.Background())
		if err != nil {
			return err
		}
		defer r.Close()
		it, err := r.Sessions(id)
		if err != nil {
			return err
		}
		for {
			e, ok := it.Next()
			if !ok {
				return it.Err()
			}
			fmt.Printf("%s -> %s\n", e.Session.Start.Format(time.RFC3339), e.Session.End.Format(time.RFC3339))
		}
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "print bbolt page and transaction counters",
	Action: func(c *cli.Context) error {
		db, err := boltkv.Open(c.String("db"), 7, boltkv.Options{ReadOnly: true})
		if err != nil {
			return err
		}
		defer db.Close()
		s := db.Stats()
		fmt.Printf("free pages: %d  pending pages: %d  transactions: %d  open tx: %d\n",
			s.FreePageN, s.PendingPageN, s.TxN, s.OpenTxN)
		return nil
	},
}

var dueCmd = &cli.Command{
	Name:      "due",
	Usage:     "set id's due date from a natural-language phrase (\"tomorrow at 5pm\")",
	ArgsUsage: "<id> <phrase...>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("usage: grusctl due <id> <phrase...>", 1)
		}
		id, err := parseU64(c.Args().Get(0))
		if err != nil {
			return err
		}
		phrase := c.Args().Get(1)
		for i := 2; i < c.Args().Len(); i++ {
			phrase += " " + c.Args().Get(i)
		}
		at, err := dateparse.New().At(phrase, time.Now())
		if err != nil {
			return err
		}
		return withWriter(c, func(w *grus.Writer) error {
			return w.SetDueDate(id, at)
		})
	},
}

func two(c *cli.Context) (a, b uint64, err error) {
	if c.Args().Len() != 2 {
		return 0, 0, cli.Exit("expected exactly two numeric arguments", 1)
	}
	if a, err = parseU64(c.Args().Get(0)); err != nil {
		return 0, 0, err
	}
	if b, err = parseU64(c.Args().Get(1)); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func withWriter(c *cli.Context, f func(*grus.Writer) error) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	w, err := store.Writer(context.Background())
	if err != nil {
		return err
	}
	if err := f(w); err != nil {
		w.Rollback()
		return err
	}
	return w.Commit()
}

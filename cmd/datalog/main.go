package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/engine"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/storage"
	"github.com/wbrown/janus-incremental/datalog/table"
	"github.com/wbrown/janus-incremental/datalog/view"
)

var demos = map[string]func(e *engine.Engine, w io.Writer) error{
	"hello":   runHello,
	"people":  runPeople,
	"closure": runClosure,
	"bacon":   runBacon,
}

var demoOrder = []string{"hello", "people", "closure", "bacon"}

func main() {
	var demo string
	var backendName string
	var verbose bool
	var help bool
	var maxIterations int
	var maxReactions int

	flag.StringVar(&demo, "demo", "all", "demo to run: "+strings.Join(demoOrder, ", ")+" or all")
	flag.StringVar(&backendName, "backend", "memory", "fact storage backend: memory or badger")
	flag.BoolVar(&verbose, "verbose", false, "verbose mode (show evaluation annotations)")
	flag.BoolVar(&help, "h", false, "show help")
	flag.IntVar(&maxIterations, "max-iterations", 0, "fixpoint iteration bound (0 uses the default)")
	flag.IntVar(&maxReactions, "max-reactions", 0, "reactive re-evaluation bound (0 uses the default)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "An embeddable incremental Datalog engine.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                        # Run every demo\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -demo bacon            # Bacon numbers by reactive relaxation\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -demo closure -verbose # Show fixpoint iterations\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -backend badger        # Store facts in badger\n", os.Args[0])
	}
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	backend, err := storage.ParseBackend(backendName)
	if err != nil {
		log.Fatalf("Invalid backend: %v", err)
	}

	// Create annotation handler if verbose mode
	var handler annotations.Handler
	if verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		handler = annotations.Handler(formatter.Handle)
	}

	names := demoOrder
	if demo != "all" {
		if _, ok := demos[demo]; !ok {
			log.Fatalf("Unknown demo %q (want one of %s)", demo, strings.Join(demoOrder, ", "))
		}
		names = []string{demo}
	}

	for _, name := range names {
		// Each demo gets its own engine so tables never leak between them
		e, err := engine.New(engine.Options{
			Backend:       backend,
			MaxIterations: maxIterations,
			MaxReactions:  maxReactions,
			Handler:       handler,
		})
		if err != nil {
			log.Fatalf("Failed to create engine: %v", err)
		}

		fmt.Printf("=== %s ===\n", name)
		err = demos[name](e, os.Stdout)
		if cerr := e.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("Demo %s failed: %v", name, err)
		}
		fmt.Println()
	}
}

func printView(w io.Writer, title string, v *view.View) {
	fmt.Fprintf(w, "\n%s:\n%s", title, v.Table())
	if diffs := v.RecentData(); diffs != nil {
		fmt.Fprintln(w, "Changes:")
		for _, d := range diffs {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}

func runHello(e *engine.Engine, w io.Writer) error {
	greetings, err := e.IntoTable([]datalog.Record{
		{"language": "en", "greeting": "Hello"},
		{"language": "es", "greeting": "Hola"},
		{"language": "zh", "greeting": "你好"},
	}, table.WithName("Greetings"))
	if err != nil {
		return err
	}
	nouns, err := e.IntoTable([]datalog.Record{
		{"language": "en", "noun": "world"},
		{"language": "es", "noun": "todos"},
		{"language": "zh", "noun": "世界"},
	}, table.WithName("Nouns"))
	if err != nil {
		return err
	}

	q, err := e.Query(func(b *query.Builder) {
		b.Match(greetings, query.Pattern{"language": query.Var("language"), "greeting": query.Var("greeting")})
		b.Match(nouns, query.Pattern{"language": query.Var("language"), "noun": query.Var("noun")})
	})
	if err != nil {
		return err
	}
	v, err := q.Named("greetings").View()
	if err != nil {
		return err
	}
	printView(w, "Greetings joined with nouns", v)
	return nil
}

func runPeople(e *engine.Engine, w io.Writer) error {
	people, err := e.IntoTable([]datalog.Record{
		{"firstName": "Jamie", "lastName": "Brandon"},
		{"firstName": "Marco", "lastName": "Munizaga"},
	}, table.WithName("People"))
	if err != nil {
		return err
	}
	away, err := e.NewTable(datalog.Schema{"firstName": datalog.TypeString}, table.WithName("Away"))
	if err != nil {
		return err
	}

	q, err := e.Query(func(b *query.Builder) {
		b.Find("firstName", "lastName")
		b.Match(people, query.Pattern{"firstName": query.Var("firstName"), "lastName": query.Var("lastName")})
		b.Not(away, query.Pattern{"firstName": query.Var("firstName")})
	})
	if err != nil {
		return err
	}
	v, err := q.Named("present").View()
	if err != nil {
		return err
	}
	printView(w, "People who are not away", v)

	if err := away.Assert(datalog.Fact{"firstName": "Jamie"}); err != nil {
		return err
	}
	if err := q.RunQuery(); err != nil {
		return err
	}
	printView(w, "After Jamie leaves", v)
	return nil
}

func runClosure(e *engine.Engine, w io.Writer) error {
	nodes, err := e.NewTable(datalog.Schema{"id": datalog.TypeNumber}, table.WithName("Nodes"))
	if err != nil {
		return err
	}
	edges, err := e.NewTable(datalog.Schema{"from": datalog.TypeNumber, "to": datalog.TypeNumber}, table.WithName("Edges"))
	if err != nil {
		return err
	}
	if err := nodes.Assert(datalog.Fact{"id": 1}); err != nil {
		return err
	}
	for i := 1; i < 5; i++ {
		if err := edges.Assert(datalog.Fact{"from": i, "to": i + 1}); err != nil {
			return err
		}
	}

	reach, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("x")})
		b.Match(edges, query.Pattern{"from": query.Var("x"), "to": query.Var("y")})
	})
	if err != nil {
		return err
	}
	reach, err = reach.Implies(func(hb *query.HeadBuilder) {
		hb.Into(nodes, query.Pattern{"id": query.Var("y")})
	})
	if err != nil {
		return err
	}
	if err := reach.RunQuery(); err != nil {
		return err
	}

	all, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("id")})
	})
	if err != nil {
		return err
	}
	v, err := all.Named("nodes").View()
	if err != nil {
		return err
	}
	printView(w, "Nodes reachable from 1", v)
	return nil
}

func runBacon(e *engine.Engine, w io.Writer) error {
	credits, err := e.IntoTable([]datalog.Record{
		{"actor": "Kevin Bacon", "movie": "Wild Things"},
		{"actor": "Robert Wagner", "movie": "Wild Things"},
		{"actor": "Kevin Bacon", "movie": "JFK"},
		{"actor": "Edward Asner", "movie": "JFK"},
		{"actor": "Elvis Presley", "movie": "Change of Habit"},
		{"actor": "Edward Asner", "movie": "Change of Habit"},
		{"actor": "Mary Tyler Moore", "movie": "Change of Habit"},
	}, table.WithName("Credits"))
	if err != nil {
		return err
	}
	bacon, err := e.IntoTable([]datalog.Record{
		{"actor": "Kevin Bacon", "number": 0},
		{"actor": "Robert Wagner", "number": datalog.Infinity},
		{"actor": "Edward Asner", "number": datalog.Infinity},
		{"actor": "Elvis Presley", "number": datalog.Infinity},
		{"actor": "Mary Tyler Moore", "number": datalog.Infinity},
	}, table.WithName("BaconNumbers"))
	if err != nil {
		return err
	}

	q, err := e.Query(func(b *query.Builder) {
		b.Match(bacon, query.Pattern{"actor": query.Var("actor"), "number": query.Var("number")})
		b.Match(credits, query.Pattern{"actor": query.Var("actor"), "movie": query.Var("movie")})
		b.Match(credits, query.Pattern{"actor": query.Var("coActor"), "movie": query.Var("movie")})
		b.Match(bacon, query.Pattern{"actor": query.Var("coActor"), "number": query.Var("coNumber")})
	})
	if err != nil {
		return err
	}
	x, err := q.Named("relax").ViewExt()
	if err != nil {
		return err
	}

	// Effects cannot return errors; keep the first one
	var effectErr error
	x.MapEffect(func(d view.Diff) {
		if d.Kind != view.Added || effectErr != nil {
			return
		}
		number, _ := d.Datum["number"].(int64)
		coNumber, _ := d.Datum["coNumber"].(int64)
		next, err := datalog.SaturatingAdd(number, 1)
		if err != nil {
			effectErr = err
			return
		}
		if next.(int64) >= coNumber {
			return
		}
		coActor := d.Datum["coActor"]
		if err := bacon.Retract(datalog.Fact{"actor": coActor, "number": coNumber}); err != nil {
			effectErr = err
			return
		}
		if err := bacon.Assert(datalog.Fact{"actor": coActor, "number": next}); err != nil {
			effectErr = err
		}
	}).OnChange(func() {
		if effectErr == nil {
			_ = x.RunQuery()
		}
	})

	if err := q.RunQuery(); err != nil {
		return err
	}
	if effectErr != nil {
		return effectErr
	}

	all, err := e.Query(func(b *query.Builder) {
		b.Match(bacon, query.Pattern{"actor": query.Var("actor"), "number": query.Var("number")})
	})
	if err != nil {
		return err
	}
	v, err := all.Named("bacon").View()
	if err != nil {
		return err
	}
	printView(w, "Bacon numbers", v)
	return nil
}

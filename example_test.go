package capture_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/capture/pkg/adapters/memory"
	"github.com/aretw0/capture/pkg/adapters/remote"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ingest"
)

// Example_ingest drives the ingestion service directly, without HTTP.
func Example_ingest() {
	root, err := os.MkdirTemp("", "capture-example-")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(root)

	ctx := context.Background()
	svc, err := ingest.New(domain.RunContext{RunID: "0badc0de", OutputRoot: root}, memory.NewCounter())
	if err != nil {
		log.Fatal(err)
	}

	session, _ := remote.NewLauncher(nil).Launch(ctx, "chrome")
	if err := svc.Register("chrome", session); err != nil {
		log.Fatal(err)
	}

	for _, frame := range []string{"a", "a", "b"} {
		receipt, err := svc.Submit(ctx, "chrome", "home", []byte(frame))
		if err != nil {
			log.Fatal(err)
		}
		rel := "-"
		if receipt.Outcome == domain.OutcomeStored {
			rel, _ = filepath.Rel(root, receipt.Destination.Path())
		}
		fmt.Println(receipt.Outcome, filepath.ToSlash(rel))
	}

	if err := svc.Complete(ctx, "chrome"); err != nil {
		log.Fatal(err)
	}
	<-svc.Done()
	fmt.Println("complete:", svc.Status().Complete)

	// Output:
	// stored 0badc0de/chrome/home1.png
	// duplicate -
	// stored 0badc0de/chrome/home2.png
	// complete: true
}

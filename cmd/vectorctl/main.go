// Command vectorctl is a small read-only inspection tool for a vectord
// store directory: list the vectors present, or dump one vector's elements.
//
// It reads directly through internal/store rather than through a running
// vectord's intake queues. The in-process queue.Registry transport
// (see DESIGN.md's "cross-process transport narrowing") means a genuine
// client/server split across two OS processes would need a real IPC
// mechanism (Unix-domain sockets are the closest portable analogue to
// POSIX mqueue) that this repository does not implement; vectorctl is
// scoped to what it can safely do as a separate process today: read a
// vector file's current contents, which the atomic rename persistence
// layer guarantees is always a complete, consistent snapshot even while
// vectord is running concurrently.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/adred-codev/vectord/internal/store"
)

func main() {
	storeDir := flag.String("store-dir", "vectors", "vectord store directory")
	name := flag.String("name", "", "vector name to dump (omit to list all vectors)")
	flag.Parse()

	st, err := store.New(*storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vectorctl: %v\n", err)
		os.Exit(1)
	}

	if *name == "" {
		if err := listVectors(st); err != nil {
			fmt.Fprintf(os.Stderr, "vectorctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := dumpVector(st, *name); err != nil {
		fmt.Fprintf(os.Stderr, "vectorctl: %v\n", err)
		os.Exit(1)
	}
}

func listVectors(st *store.Store) error {
	names, err := st.ExistingNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		size, err := st.ReadSize(n)
		if err != nil {
			fmt.Printf("%s\t<unreadable: %v>\n", n, err)
			continue
		}
		fmt.Printf("%s\t%d\n", n, size)
	}
	return nil
}

func dumpVector(st *store.Store, name string) error {
	size, err := st.ReadSize(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d elements\n", name, size)
	for i := 0; i < size; i++ {
		v, err := st.ReadAt(name, i)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		fmt.Printf("[%d] %d\n", i, v)
	}
	return nil
}

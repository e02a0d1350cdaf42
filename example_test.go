package graphstore_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/graphstore"
	"github.com/hupe1980/graphstore/blobstore"
)

func openExample(ctx context.Context, opts ...graphstore.Option) (*graphstore.DB, func()) {
	dir, err := os.MkdirTemp("", "graphstore-example")
	if err != nil {
		log.Fatal(err)
	}
	db, err := graphstore.Open(ctx, dir, opts...)
	if err != nil {
		log.Fatal(err)
	}
	return db, func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	}
}

func createPerson(ctx context.Context, db *graphstore.DB) {
	_, err := db.CreateNodeTable(ctx, "Person", []graphstore.Property{
		{Name: "name", Type: graphstore.String},
		{Name: "age", Type: graphstore.Int64},
	}, "name")
	if err != nil {
		log.Fatal(err)
	}
}

// Example demonstrates inserting nodes and looking one up by primary key.
func Example() {
	ctx := context.Background()
	db, cleanup := openExample(ctx)
	defer cleanup()
	createPerson(ctx, db)

	err := db.Update(ctx, func(tx *graphstore.Tx) error {
		for name, age := range map[string]int64{"alice": 7, "bob": 3, "carol": 9} {
			if _, err := tx.Insert("Person", map[string]graphstore.Value{
				"name": graphstore.NewString(name),
				"age":  graphstore.NewInt64(age),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	_ = db.View(ctx, func(tx *graphstore.Tx) error {
		off, err := tx.LookupPK("Person", graphstore.NewString("bob"))
		if err != nil {
			return err
		}
		row, err := tx.Get("Person", off, "age")
		if err != nil {
			return err
		}
		fmt.Printf("bob is %d\n", row.Values["age"].Int64())
		return nil
	})
	// Output: bob is 3
}

// Example_scan demonstrates a filtered scan.
func Example_scan() {
	ctx := context.Background()
	db, cleanup := openExample(ctx)
	defer cleanup()
	createPerson(ctx, db)

	_ = db.Update(ctx, func(tx *graphstore.Tx) error {
		for i, name := range []string{"alice", "bob", "carol", "dave"} {
			if _, err := tx.Insert("Person", map[string]graphstore.Value{
				"name": graphstore.NewString(name),
				"age":  graphstore.NewInt64(int64(20 + 10*i)),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	_ = db.View(ctx, func(tx *graphstore.Tx) error {
		rows := tx.Scan(ctx, "Person",
			graphstore.WithScanProperties("name"),
			graphstore.WithScanFilter("age", graphstore.Ge, graphstore.NewInt64(40)),
		)
		for row, err := range rows {
			if err != nil {
				return err
			}
			fmt.Println(row.Values["name"].Str())
		}
		return nil
	})
	// Output:
	// carol
	// dave
}

// Example_bulkLoad demonstrates loading a table from two parallel sources.
func Example_bulkLoad() {
	ctx := context.Background()
	db, cleanup := openExample(ctx, graphstore.WithNodeGroupSizeLog2(8))
	defer cleanup()
	createPerson(ctx, db)

	source := func(first, n int) graphstore.RowSource {
		return func(yield func([]graphstore.Value, error) bool) {
			for i := first; i < first+n; i++ {
				row := []graphstore.Value{graphstore.NewString(fmt.Sprintf("p%04d", i)), graphstore.NewInt64(int64(i % 90))}
				if !yield(row, nil) {
					return
				}
			}
		}
	}
	res, err := db.BulkLoad(ctx, "Person", []graphstore.RowSource{source(0, 500), source(500, 500)})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("loaded %d rows in %d node groups\n", res.Rows, res.NodeGroups)
	// Output: loaded 1000 rows in 4 node groups
}

// Example_archive demonstrates archiving a checkpoint and restoring it into
// a new directory.
func Example_archive() {
	ctx := context.Background()
	db, cleanup := openExample(ctx)
	defer cleanup()
	createPerson(ctx, db)
	_ = db.Update(ctx, func(tx *graphstore.Tx) error {
		_, err := tx.Insert("Person", map[string]graphstore.Value{"name": graphstore.NewString("alice")})
		return err
	})

	store := blobstore.NewMemoryStore()
	if _, err := db.Archive(ctx, store); err != nil {
		log.Fatal(err)
	}

	dir, _ := os.MkdirTemp("", "graphstore-restore")
	defer os.RemoveAll(dir)
	if _, err := graphstore.Restore(ctx, store, dir); err != nil {
		log.Fatal(err)
	}
	restored, err := graphstore.Open(ctx, dir)
	if err != nil {
		log.Fatal(err)
	}
	defer restored.Close()

	_ = restored.View(ctx, func(tx *graphstore.Tx) error {
		n, err := tx.Count("Person")
		fmt.Println("restored nodes:", n)
		return err
	})
	// Output: restored nodes: 1
}

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"qstore/internal/config"
	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/schema"
	"qstore/internal/server"
	"qstore/internal/snapshot"
	"qstore/internal/store"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (listen: %s, node_id: %d)", cfg.Server.ListenAddr, cfg.NodeID)

	// 2. Interner, Schema Registry, Notification Hub
	in := intern.New()
	registry := schema.NewRegistry()
	hub := notify.NewHub(cfg.Notify.QueueCapacity)

	// 3. Store Core
	st := store.New(in, registry, hub, store.SystemClock, cfg.NodeID)
	log.Println("Store initialized")

	// 4. Restore from a prior snapshot if one exists, otherwise
	// bootstrap the built-in Object/Root schemas and the Root entity.
	if restored, err := restoreFromDisk(st, cfg.Snapshot.Path); err != nil {
		log.Fatalf("Failed to restore snapshot %s: %v", cfg.Snapshot.Path, err)
	} else if restored {
		log.Printf("Restored store from snapshot %s", cfg.Snapshot.Path)
	} else if err := bootstrap(st); err != nil {
		log.Fatalf("Failed to bootstrap built-in schema: %v", err)
	}

	// 5. Start TCP server
	srv := server.New(cfg.Server, st)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	// 6. Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
	if err := srv.Close(); err != nil {
		log.Printf("WARN: error closing listener: %v", err)
	}

	if err := saveToDisk(st, cfg.Snapshot.Path); err != nil {
		log.Printf("WARN: failed to write snapshot on shutdown: %v", err)
	} else {
		log.Printf("Wrote snapshot to %s", cfg.Snapshot.Path)
	}
}

// restoreFromDisk loads path as a QSNP blob and restores st from it.
// A missing file is not an error: it just means this is a fresh store.
func restoreFromDisk(st *store.Store, path string) (bool, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	snap, err := snapshot.Decode(blob)
	if err != nil {
		return false, err
	}
	if err := st.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}

func saveToDisk(st *store.Store, path string) error {
	snap := st.Snapshot()
	blob, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

// bootstrap registers the built-in Object and Root entity types and
// creates the Root entity, so a fresh store is immediately usable.
func bootstrap(st *store.Store) error {
	objectType := st.Interner().InternEntityType(intern.ObjectTypeName)
	nameField := st.Interner().InternFieldType(intern.NameFieldName)
	parentField := st.Interner().InternFieldType(intern.ParentFieldName)
	childrenField := st.Interner().InternFieldType(intern.ChildrenFieldName)

	objectSchema := schema.Schema{
		Type: objectType,
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			nameField: {Field: nameField, Variant: schema.VariantString, StorageScope: schema.Persistent},
		},
	}
	if _, err := st.Registry().Update(objectSchema); err != nil {
		return err
	}

	rootType := st.Interner().InternEntityType(intern.RootTypeName)
	rootSchema := schema.Schema{
		Type:    rootType,
		Parents: []intern.EntityType{objectType},
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			parentField:   {Field: parentField, Variant: schema.VariantEntityReference, StorageScope: schema.Persistent},
			childrenField: {Field: childrenField, Variant: schema.VariantEntityList, StorageScope: schema.Persistent},
		},
	}
	if _, err := st.Registry().Update(rootSchema); err != nil {
		return err
	}

	batch := store.NewRequests(nil, &store.CreateRequest{EntityType: rootType, Name: "Root"})
	if _, err := st.Execute(batch); err != nil {
		return err
	}
	return nil
}

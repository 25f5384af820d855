package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/netsoul/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var ctx = context.Background()

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels", func() {
			store := storage.NewInmemoryStore()
			updateChan := store.ListenToUpdates()

			Expect(store.Close()).To(Succeed())
			Eventually(updateChan).Should(BeClosed())
		})
	})

	It("an empty inmemory store equals {}", func() {
		store := storage.NewInmemoryStore()
		defer store.Close()

		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			err := store.Set(ctx, "foo", "bar")
			Expect(err).To(Succeed())

			Expect(store.Get(ctx, "foo")).To(Equal([]byte(`"bar"`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("returns ErrNotFound for missing keys", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			_, err := store.Get(ctx, "nope")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("escapes path segments", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Set(ctx, storage.Path("first.last", "x"), 1)).To(Succeed())
			Expect(store.Get(ctx, storage.Path("first.last", "x"))).To(Equal([]byte(`1`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"first.last":{"x":1}}`))
		})

		It("sends on the update channel when values are set", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			updateChan := store.ListenToUpdates()
			err := store.Set(ctx, "foo", "bar")
			Expect(err).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update).To(Equal(&storage.Update{
				Key:   "foo",
				Value: []byte(`"bar"`),
			}))
		})
	})

	Describe("Delete()", func() {
		It("removes the key and tells listeners", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())
			updateChan := store.ListenToUpdates()

			Expect(store.Delete(ctx, "foo")).To(Succeed())

			_, err := store.Get(ctx, "foo")
			Expect(err).To(MatchError(storage.ErrNotFound))
			Expect(<-updateChan).To(Equal(&storage.Update{Key: "foo"}))
		})

		It("ignores missing keys", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Delete(ctx, "foo")).To(Succeed())
		})
	})

	Describe("Restore()", func() {
		It("replaces the document", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"a":{"b":2}}`))).To(Succeed())
			Expect(store.Get(ctx, "a.b")).To(Equal([]byte(`2`)))
		})

		It("refuses invalid JSON", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"a":`))).NotTo(Succeed())
		})
	})
})

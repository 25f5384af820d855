package protocol_test

import (
	"regexp"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/netsoul/protocol"
)

var _ = Describe("Framer", func() {
	It("returns complete lines and keeps the partial one", func() {
		f := protocol.NewFramer(nil)

		Expect(f.Push([]byte("salut 1 h 1.2.3.4 1 1\nping"))).To(Equal([]string{"salut 1 h 1.2.3.4 1 1"}))
		Expect(string(f.Pending())).To(Equal("ping"))

		Expect(f.Push([]byte(" 12\r\n"))).To(Equal([]string{"ping 12"}))
		Expect(f.Pending()).To(BeEmpty())
	})

	It("returns nothing until a delimiter arrives", func() {
		f := protocol.NewFramer(nil)

		Expect(f.Push([]byte("rep 2"))).To(BeEmpty())
		Expect(f.Push([]byte(" ok"))).To(BeEmpty())
		Expect(f.Push([]byte("\n"))).To(Equal([]string{"rep 2 ok"}))
	})

	It("keeps empty lines", func() {
		f := protocol.NewFramer(nil)

		Expect(f.Push([]byte("a\n\nb\n"))).To(Equal([]string{"a", "", "b"}))
	})

	It("handles a CR and LF split across chunks", func() {
		f := protocol.NewFramer(nil)

		Expect(f.Push([]byte("a\r"))).To(BeEmpty())
		Expect(f.Push([]byte("\nb\r\n"))).To(Equal([]string{"a", "b"}))
	})

	It("splits on a custom delimiter", func() {
		f := protocol.NewFramer(regexp.MustCompile(`;`))

		Expect(f.Push([]byte("a;b;c"))).To(Equal([]string{"a", "b"}))
		Expect(string(f.Pending())).To(Equal("c"))
	})

	It("does not depend on where chunks are split", func() {
		input := []byte("salut 12 abcd 1.2.3.4 4242 1000\r\nrep 2 ok\nuser_cmd 1:user:1/3:bob@1.1.1.1:~:home:epita_2020 | login\r\nping 5\npartial")

		whole := protocol.NewFramer(nil).Push(input)
		Expect(whole).To(HaveLen(4))

		for i := 0; i <= len(input); i++ {
			f := protocol.NewFramer(nil)

			var lines []string
			lines = append(lines, f.Push(input[:i])...)
			lines = append(lines, f.Push(input[i:])...)

			Expect(lines).To(Equal(whole), "split at %d", i)
			Expect(string(f.Pending())).To(Equal("partial"))
		}
	})

	It("handles one byte at a time", func() {
		input := []byte("a b\r\nc d\n")
		f := protocol.NewFramer(nil)

		var lines []string
		for i := range input {
			lines = append(lines, f.Push(input[i:i+1])...)
		}

		Expect(lines).To(Equal([]string{"a b", "c d"}))
	})

	It("forgets the partial line on Reset", func() {
		f := protocol.NewFramer(nil)

		Expect(f.Push([]byte("ping 1"))).To(BeEmpty())
		f.Reset()
		Expect(f.Pending()).To(BeEmpty())

		Expect(f.Push([]byte("ping 2\n"))).To(Equal([]string{"ping 2"}))
	})
})

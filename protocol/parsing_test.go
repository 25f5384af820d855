package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/netsoul/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("ParseLine()", func() {
		It("returns nothing for an empty line", func() {
			msg, err := protocol.ParseLine("")
			Expect(err).To(Succeed())
			Expect(msg).To(BeNil())
		})

		It("parses a reply", func() {
			msg, err := protocol.ParseLine("rep 002 -- cmd end")
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(&protocol.Reply{Code: 2, Text: "-- cmd end"}))
			Expect(msg.(*protocol.Reply).OK()).To(BeTrue())
		})

		It("parses a reply without text", func() {
			msg, err := protocol.ParseLine("rep 33")
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(&protocol.Reply{Code: 33}))
		})

		It("parses a ping", func() {
			msg, err := protocol.ParseLine("ping 600")
			Expect(err).To(Succeed())
			Expect(msg.GetCommand()).To(Equal(protocol.PING))
			Expect(msg).To(Equal(&protocol.Ping{Timestamp: 600}))
		})

		It("parses a greeting", func() {
			msg, err := protocol.ParseLine("salut 12 abcd 1.2.3.4 4242 1000")
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(&protocol.Greeting{
				Socket:    12,
				Hash:      "abcd",
				IP:        "1.2.3.4",
				Port:      4242,
				Timestamp: 1000,
			}))
		})

		It("parses a user command", func() {
			msg, err := protocol.ParseLine("user_cmd 42:user:1/3:bob@10.0.0.1:~:at%20home:epita_2020 | msg hello dst=alice")
			Expect(err).To(Succeed())

			cmd, ok := msg.(*protocol.UserCommand)
			Expect(ok).To(BeTrue())
			Expect(cmd.Header).To(Equal(protocol.UserHeader{
				Socket:          42,
				Kind:            "user",
				TrustLevelLow:   1,
				TrustLevelHigh:  3,
				Login:           "bob",
				IP:              "10.0.0.1",
				WorkstationType: "~",
				Location:        "at home",
				Group:           "epita_2020",
			}))
			Expect(cmd.Body).To(Equal([]string{"msg", "hello", "dst=alice"}))
		})

		It("parses a user command header without the kind field", func() {
			header, err := protocol.ParseUserHeader("42:1/3:bob@10.0.0.1:~:loc:grp")
			Expect(err).To(Succeed())
			Expect(header.Login).To(Equal("bob"))
			Expect(header.Kind).To(BeEmpty())
			Expect(header.Group).To(Equal("grp"))
		})

		It("returns unknown lines with their tokens", func() {
			msg, err := protocol.ParseLine("foo bar baz")
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(&protocol.Unknown{Tokens: []string{"foo", "bar", "baz"}}))
			Expect(msg.GetCommand()).To(Equal(protocol.Command("foo")))
		})

		DescribeTable("returns ErrMalformedLine for bad fields",
			func(line string) {
				_, err := protocol.ParseLine(line)
				Expect(errors.Is(err, protocol.ErrMalformedLine)).To(BeTrue())
			},
			Entry("rep without code", "rep"),
			Entry("rep with a word as code", "rep ok fine"),
			Entry("ping without timestamp", "ping"),
			Entry("ping with a word", "ping soon"),
			Entry("short greeting", "salut 12 abcd"),
			Entry("greeting with a bad port", "salut 12 abcd 1.2.3.4 port 1000"),
			Entry("user_cmd without header", "user_cmd"),
			Entry("user_cmd with a short header", "user_cmd 1:bob | login"),
			Entry("user_cmd with bad trust levels", "user_cmd 1:user:13:bob@ip:~:loc:grp | login"),
		)

		It("keeps the underlying cause", func() {
			_, err := protocol.ParseLine("salut 12")
			Expect(errors.Is(err, protocol.ErrLineTooShort)).To(BeTrue())
		})
	})

	Describe("DecodeRosterRow()", func() {
		body := []string{"who", "42", "bob", "10.0.0.1", "1000", "1100", "1", "3", "~", "at%20home", "epita_2020", "actif:1100", "my%20client"}

		It("decodes every field", func() {
			row, err := protocol.DecodeRosterRow(body)
			Expect(err).To(Succeed())
			Expect(row).To(Equal(protocol.RosterRow{
				Socket:              42,
				Login:               "bob",
				IP:                  "10.0.0.1",
				LoginTimestamp:      1000,
				LastChangeTimestamp: 1100,
				TrustLevelLow:       1,
				TrustLevelHigh:      3,
				WorkstationType:     "~",
				Location:            "at home",
				Group:               "epita_2020",
				State:               protocol.State{Name: "actif", Timestamp: 1100},
				Resource:            "my client",
			}))
		})

		It("fails on short rows", func() {
			_, err := protocol.DecodeRosterRow(body[:5])
			Expect(errors.Is(err, protocol.ErrMalformedBody)).To(BeTrue())
		})

		It("detects the terminator", func() {
			Expect(protocol.IsWhoTerminator([]string{"who", "rep", "--", "cmd", "end"}, protocol.DefaultWhoTerminator)).To(BeTrue())
			Expect(protocol.IsWhoTerminator(body, protocol.DefaultWhoTerminator)).To(BeFalse())
		})
	})

	Describe("DecodeState()", func() {
		It("decodes name and timestamp", func() {
			Expect(protocol.DecodeState("away:1234")).To(Equal(protocol.State{Name: "away", Timestamp: 1234}))
		})

		It("accepts a missing timestamp", func() {
			Expect(protocol.DecodeState("away")).To(Equal(protocol.State{Name: "away"}))
		})

		It("fails on a bad timestamp", func() {
			_, err := protocol.DecodeState("away:later")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("DecodePeerCommand()", func() {
		It("decodes the command, payload and destinations", func() {
			cmd, err := protocol.DecodePeerCommand([]string{"msg", "hi%20there", "dst={alice,:12}"})
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(protocol.PeerCommand{
				Cmd:   "msg",
				Data:  "hi there",
				Dests: protocol.LoginList{protocol.Name("alice"), protocol.ID(12)},
			}))
		})

		It("rejects bodies of the wrong shape", func() {
			_, err := protocol.DecodePeerCommand([]string{"msg", "hi"})
			Expect(err).To(MatchError(protocol.ErrNotPeerCommand))

			_, err = protocol.DecodePeerCommand([]string{"msg", "hi", "alice"})
			Expect(err).To(MatchError(protocol.ErrNotPeerCommand))
		})
	})

	Describe("file payloads", func() {
		It("decodes a file offer", func() {
			offer, err := protocol.DecodeFileOffer("my%20file.txt 2048 some%20notes passive")
			Expect(err).To(Succeed())
			Expect(offer).To(Equal(protocol.FileOffer{
				Name:        "my file.txt",
				Size:        2048,
				Description: "some notes",
				Method:      "passive",
			}))
		})

		It("rejects file offers with the wrong number of fields", func() {
			_, err := protocol.DecodeFileOffer("file 2048 passive")
			Expect(errors.Is(err, protocol.ErrMalformedBody)).To(BeTrue())
		})

		It("decodes a file start", func() {
			start, err := protocol.DecodeFileStart("a.bin 10.0.0.2 4000")
			Expect(err).To(Succeed())
			Expect(start).To(Equal(protocol.FileStart{Name: "a.bin", IP: "10.0.0.2", Port: 4000}))
		})

		It("rejects file starts with the wrong number of fields", func() {
			_, err := protocol.DecodeFileStart("a.bin 10.0.0.2")
			Expect(errors.Is(err, protocol.ErrMalformedBody)).To(BeTrue())
		})
	})
})

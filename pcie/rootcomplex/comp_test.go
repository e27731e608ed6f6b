package rootcomplex

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/sim"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		rqPort   *MockPort
		rc       *Comp
		mw       *middleware
		busData  []byte
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		rqPort = NewMockPort(mockCtrl)

		rc = MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithBusWidth(16).
			WithMaxPayloadSizeCode(0).
			WithRequesterIDCheck(0x0100).
			WithTLPLog().
			Build("RC")
		rc.rqPort = rqPort
		mw = rc.Middlewares()[0].(*middleware)

		busData = make([]byte, 16)
		for i := range busData {
			busData[i] = byte(0x10 + i)
		}

		engine.EXPECT().CurrentTime().Return(sim.VTimeInSec(5e-9)).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	header := func(addr, n uint64) pcie.MWrHeader {
		h := pcie.NewMWrHeader(addr, n)
		h.RequesterID = 0x0100
		h.Tag = 3

		return h
	}

	expectBeat := func(beat *pcie.Beat) {
		rqPort.EXPECT().PeekIncoming().Return(beat)
		rqPort.EXPECT().RetrieveIncoming().Return(beat)
	}

	It("should do nothing if there is no beat", func() {
		rqPort.EXPECT().PeekIncoming().Return(nil)

		Expect(mw.Tick()).To(BeFalse())
	})

	It("should not touch the port while paused", func() {
		rc.paused = true

		Expect(rc.Tick()).To(BeFalse())
	})

	It("should write a single beat request", func() {
		beat := pcie.BeatBuilder{}.
			WithHeader(header(0x1003, 5)).
			WithData(busData, pcie.LaneMask(16, 3, 5)).
			AsLast().
			Build()
		expectBeat(beat)

		Expect(mw.Tick()).To(BeTrue())

		data, err := rc.ReadMem(0x1002, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte{0, 0x13, 0x14, 0x15, 0x16, 0x17, 0}))
		Expect(rc.Stats()).To(Equal(Stats{TLPs: 1, Beats: 1, Bytes: 5}))
		Expect(rc.TLPLog()).To(HaveLen(1))
		Expect(rc.TLPLog()[0].Cycle).To(Equal(uint64(5)))
		Expect(rc.TLPLog()[0].Tag).To(Equal(uint8(3)))
	})

	It("should write a request that spans beats", func() {
		beats := []*pcie.Beat{
			pcie.BeatBuilder{}.
				WithHeader(header(0x100e, 20)).
				WithData(busData, pcie.LaneMask(16, 14, 20)).
				Build(),
			pcie.BeatBuilder{}.
				WithData(busData, pcie.LaneMask(16, 0, 18)).
				Build(),
			pcie.BeatBuilder{}.
				WithData(busData, pcie.LaneMask(16, 0, 2)).
				AsLast().
				Build(),
		}

		for _, b := range beats {
			expectBeat(b)
			Expect(mw.Tick()).To(BeTrue())
		}

		data, err := rc.ReadMem(0x100e, 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(data[:2]).To(Equal(busData[14:]))
		Expect(data[2:18]).To(Equal(busData))
		Expect(data[18:]).To(Equal(busData[:2]))
		Expect(rc.Stats()).To(Equal(Stats{TLPs: 1, Beats: 3, Bytes: 20}))
		Expect(rc.TLPLog()[0].NumBeats).To(Equal(3))
	})

	It("should notify hooks when a request completes", func() {
		var got []TLPRecord

		rc.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == HookPosTLPReceived {
				got = append(got, ctx.Item.(TLPRecord))
			}
		}))

		expectBeat(pcie.BeatBuilder{}.
			WithHeader(header(0x2000, 4)).
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build())

		mw.Tick()

		Expect(got).To(HaveLen(1))
		Expect(got[0].Address).To(Equal(uint64(0x2000)))
		Expect(got[0].Header).To(Equal("400000010100030f00002000"))
	})

	It("should panic if a request does not start with a header", func() {
		beat := pcie.BeatBuilder{}.
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if a request crosses the max payload boundary", func() {
		beat := pcie.BeatBuilder{}.
			WithHeader(header(120, 16)).
			WithData(busData, pcie.LaneMask(16, 8, 16)).
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if a request exceeds the max payload", func() {
		h := header(0, 128)
		h.ByteCount = 132
		beat := pcie.BeatBuilder{}.
			WithHeader(h).
			WithData(busData, pcie.LaneMask(16, 0, 132)).
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if the byte enables are wrong", func() {
		h := header(0x1001, 2)
		h.FirstBE = 0xf
		beat := pcie.BeatBuilder{}.
			WithHeader(h).
			WithData(busData, pcie.LaneMask(16, 1, 2)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if the requester ID is wrong", func() {
		h := header(0x1000, 4)
		h.RequesterID = 0x0200
		beat := pcie.BeatBuilder{}.
			WithHeader(h).
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if the lanes do not follow the address", func() {
		beat := pcie.BeatBuilder{}.
			WithHeader(header(0x1004, 4)).
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic if last is not on the final byte", func() {
		beat := pcie.BeatBuilder{}.
			WithHeader(header(0x1000, 20)).
			WithData(busData, pcie.LaneMask(16, 0, 20)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should panic on a header in the middle of a request", func() {
		expectBeat(pcie.BeatBuilder{}.
			WithHeader(header(0x1000, 20)).
			WithData(busData, pcie.LaneMask(16, 0, 20)).
			Build())
		mw.Tick()

		beat := pcie.BeatBuilder{}.
			WithHeader(header(0x1010, 4)).
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build()
		rqPort.EXPECT().PeekIncoming().Return(beat)

		Expect(func() { mw.Tick() }).To(Panic())
	})

	It("should drop a partial request on reset", func() {
		expectBeat(pcie.BeatBuilder{}.
			WithHeader(header(0x1000, 20)).
			WithData(busData, pcie.LaneMask(16, 0, 20)).
			Build())
		mw.Tick()

		rqPort.EXPECT().Clear()
		rc.Reset()

		expectBeat(pcie.BeatBuilder{}.
			WithHeader(header(0x3000, 4)).
			WithData(busData, pcie.LaneMask(16, 0, 4)).
			AsLast().
			Build())

		Expect(mw.Tick()).To(BeTrue())
		Expect(rc.Stats().TLPs).To(Equal(uint64(1)))
	})
})

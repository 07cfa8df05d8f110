package report

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// legacyResponse lays out a BLKREPORT response in the given byte order
func legacyResponse(capacity int, stated uint32, order binary.ByteOrder, zones ...uapi.ZoneDescriptor) []byte {
	buf := make([]byte, capacity)
	uapi.PutZoneReport(buf, &uapi.ZoneReport{
		DescriptorCount: stated,
		SameField:       1,
		MaximumLBA:      0xabcd_0000_0000_ffff,
	}, order)
	for i := range zones {
		off := uapi.ZoneReportHeaderSize + i*uapi.ZoneDescriptorSize
		uapi.PutZoneDescriptor(buf[off:], &zones[i], order)
	}
	return buf
}

// mainlineResponse lays out a BLKREPORTZONE response
func mainlineResponse(capacity int, stated uint32, flags uint32, zones ...uapi.BlkZone) []byte {
	buf := make([]byte, capacity)
	uapi.PutBlkZoneReport(buf, &uapi.BlkZoneReport{NrZones: stated, Flags: flags})
	for i := range zones {
		off := uapi.BlkZoneReportHeaderSize + i*uapi.BlkZoneSize
		uapi.PutBlkZone(buf[off:], &zones[i])
	}
	return buf
}

func seqZone(i uint64, length uint64, cond uint8) uapi.ZoneDescriptor {
	return uapi.ZoneDescriptor{
		Type:     uapi.ZTYP_SEQ_WRITE_REQUIRED,
		Flags:    cond << uapi.ZFLAG_COND_SHIFT,
		Length:   length,
		LBAStart: i * length,
		LBAWptr:  i*length + 8,
	}
}

func TestFilterValidation(t *testing.T) {
	accepted := map[uint64]bool{0x10: true, 0x11: true, 0x3f: true}
	for v := uint64(0); v <= 7; v++ {
		accepted[v] = true
	}

	for v := uint64(0); v <= 0x100; v++ {
		f, err := ParseFilter(v)
		if accepted[v] {
			require.NoError(t, err, "filter 0x%x", v)
			assert.Equal(t, Filter(v), f)
			assert.True(t, f.Valid())
		} else {
			require.ErrorIs(t, err, ErrInvalidFilter, "filter 0x%x", v)
		}
	}

	_, err := ParseFilter(0x40)
	assert.ErrorContains(t, err, "reserved")

	_, err = ParseFilter(1 << 40)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestValidateLength(t *testing.T) {
	for _, n := range []uint32{512, 4096, 64 << 10, MaxLength} {
		assert.NoError(t, ValidateLength(n), "length %d", n)
	}
	for _, n := range []uint32{0, 511, 513, 1000, MaxLength + 512, 1 << 20} {
		assert.ErrorIs(t, ValidateLength(n), ErrInvalidLength, "length %d", n)
	}
}

func TestBuildLegacy(t *testing.T) {
	t.Run("variant a", func(t *testing.T) {
		cmd, err := Build(VariantA, Request{
			StartLBA:       0x80000,
			Capacity:       4096,
			Filter:         FilterClosed,
			ATAPassthrough: true,
		})
		require.NoError(t, err)
		assert.Equal(t, uapi.BLKREPORT, cmd.Op)
		assert.Equal(t, uapi.DirReadWrite, cmd.Dir)
		require.Len(t, cmd.Buf, 4096)

		var in uapi.ZoneGetReport
		require.NoError(t, uapi.Unmarshal(cmd.Buf[:uapi.ZoneGetReportSize], &in))
		assert.Equal(t, uint64(0x80000), in.ZoneLocatorLBA)
		assert.Equal(t, uint32(4096), in.ReturnPageCount)
		assert.Equal(t, uint8(uapi.ZOPT_ZC4_CLOSED|uapi.ZOPT_USE_ATA_PASS), in.ReportOption)
		assert.Zero(t, cmd.Buf[uapi.ZoneGetReportSize], "variant a has no fua byte")
	})

	t.Run("variant a rejects force", func(t *testing.T) {
		_, err := Build(VariantA, Request{Capacity: 512, Force: true})
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("variant b carries force", func(t *testing.T) {
		cmd, err := Build(VariantB, Request{Capacity: 512, Filter: FilterNoWritePointer, Force: true})
		require.NoError(t, err)
		assert.Equal(t, uint8(0x3f), cmd.Buf[12])
		assert.Equal(t, uint8(1), cmd.Buf[13])
	})
}

func TestBuildMainline(t *testing.T) {
	cmd, err := Build(VariantC, Request{StartLBA: 0x100000, Capacity: 8192})
	require.NoError(t, err)
	assert.Equal(t, uapi.BLKREPORTZONE, cmd.Op)

	var hdr uapi.BlkZoneReport
	require.NoError(t, uapi.Unmarshal(cmd.Buf, &hdr))
	assert.Equal(t, uint64(0x100000), hdr.Sector)
	assert.Equal(t, uint32((8192-16)/64), hdr.NrZones)
	assert.Zero(t, hdr.Flags)

	for _, req := range []Request{
		{Capacity: 512, Filter: FilterEmpty},
		{Capacity: 512, Force: true},
		{Capacity: 512, ATAPassthrough: true},
	} {
		_, err := Build(VariantC, req)
		assert.ErrorIs(t, err, ErrUnsupported, "%+v", req)
	}
}

func TestBuildRejectsBeforeAllocating(t *testing.T) {
	_, err := Build(VariantB, Request{Capacity: 512, Filter: Filter(0x40)})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = Build(VariantB, Request{Capacity: 1000})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = Build(Variant(9), Request{Capacity: 512})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestTruncation(t *testing.T) {
	t.Run("legacy", func(t *testing.T) {
		const capacity = 512 // room for 7 descriptors
		zones := make([]uapi.ZoneDescriptor, 7)
		for i := range zones {
			zones[i] = seqZone(uint64(i), 0x80000, uapi.ZCOND_ZC2_OPEN_IMPLICIT)
		}
		buf := legacyResponse(capacity, 20, binary.BigEndian, zones...)

		sc, err := Decode(VariantA, buf, capacity)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)

		hdr := sc.Header()
		assert.Len(t, got, 7)
		assert.Equal(t, uint32(20), hdr.Stated)
		assert.Equal(t, uint32(7), hdr.Fits)
		assert.True(t, hdr.Truncated)
	})

	t.Run("mainline", func(t *testing.T) {
		const capacity = 512 // (512-16)/64 = 7
		zones := make([]uapi.BlkZone, 8)
		for i := range zones {
			zones[i] = uapi.BlkZone{Start: uint64(i) * 0x800, Len: 0x800, WP: uint64(i) * 0x800, Type: 2, Cond: 1}
		}
		buf := mainlineResponse(1024, 8, 0, zones...)

		sc, err := Decode(VariantC, buf, capacity)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		assert.Len(t, got, 7)
		assert.True(t, sc.Header().Truncated)
	})

	t.Run("stated fewer than fit", func(t *testing.T) {
		zones := []uapi.ZoneDescriptor{
			seqZone(0, 0x80000, uapi.ZCOND_ZC1_EMPTY),
			seqZone(1, 0x80000, uapi.ZCOND_ZC1_EMPTY),
			seqZone(2, 0x80000, uapi.ZCOND_ZC1_EMPTY),
		}
		buf := legacyResponse(4096, 2, binary.BigEndian, zones...)

		sc, err := Decode(VariantB, buf, 4096)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.False(t, sc.Header().Truncated)
	})
}

func TestZeroLengthSentinel(t *testing.T) {
	for k := 0; k < 6; k++ {
		zones := make([]uapi.ZoneDescriptor, 6)
		for i := range zones {
			zones[i] = seqZone(uint64(i), 0x100000, uapi.ZCOND_ZC4_CLOSED)
		}
		zones[k] = uapi.ZoneDescriptor{}
		if k == 0 {
			// keep detection on the big-endian path; only the length is zero
			zones[0].Type = uapi.ZTYP_SEQ_WRITE_REQUIRED
		}
		buf := legacyResponse(4096, 6, binary.BigEndian, zones...)

		sc, err := DecodeWithOrder(VariantA, buf, len(buf), binary.BigEndian)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		assert.Len(t, got, k, "sentinel at %d", k)
		assert.Equal(t, k, sc.Count())
	}
}

func TestEndianDetection(t *testing.T) {
	t.Run("canonical big-endian length", func(t *testing.T) {
		z := uapi.ZoneDescriptor{
			Type:     uapi.ZTYP_SEQ_WRITE_PREFERRED,
			Flags:    uapi.ZCOND_ZC3_OPEN_EXPLICIT<<uapi.ZFLAG_COND_SHIFT | uapi.ZFLAG_RESET_RECOMMENDED,
			Length:   0x100000,
			LBAStart: 0x300000,
			LBAWptr:  0x300123,
		}
		buf := legacyResponse(512, 1, binary.BigEndian, z)
		assert.Equal(t, binary.BigEndian, DetectByteOrder(buf))

		sc, err := Decode(VariantA, buf, len(buf))
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.True(t, sc.Header().BigEndian())
		assert.Equal(t, Descriptor{
			Type:             TypeSeqWritePreferred,
			Condition:        CondExplicitOpen,
			Start:            0x300000,
			Length:           0x100000,
			WritePointer:     0x300123,
			Capacity:         0x100000,
			ResetRecommended: true,
		}, got[0])
	})

	t.Run("every canonical value", func(t *testing.T) {
		for l := range canonicalZoneLengths {
			buf := legacyResponse(512, 1, binary.BigEndian, seqZone(0, l, uapi.ZCOND_ZC1_EMPTY))
			assert.Equal(t, binary.BigEndian, DetectByteOrder(buf), "length 0x%x", l)
		}
	})

	t.Run("native little-endian data", func(t *testing.T) {
		z := seqZone(1, 0x100000, uapi.ZCOND_ZC5_FULL)
		z.LBAWptr = z.LBAStart + 0x100000
		buf := legacyResponse(512, 1, binary.LittleEndian, z)
		assert.Equal(t, binary.LittleEndian, DetectByteOrder(buf))

		sc, err := Decode(VariantB, buf, len(buf))
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.False(t, sc.Header().BigEndian())
		assert.Equal(t, uint64(0x100000), got[0].Start)
		assert.Equal(t, uint64(0x100000), got[0].Length)
		assert.Equal(t, CondFull, got[0].Condition)
	})

	t.Run("non-canonical big-endian length", func(t *testing.T) {
		buf := legacyResponse(512, 1, binary.BigEndian, seqZone(0, 0x12345, uapi.ZCOND_ZC1_EMPTY))
		assert.Equal(t, binary.LittleEndian, DetectByteOrder(buf))
	})

	t.Run("no descriptor", func(t *testing.T) {
		assert.Equal(t, binary.LittleEndian, DetectByteOrder(make([]byte, 64)))
	})
}

func TestLegacyHeader(t *testing.T) {
	buf := legacyResponse(512, 1, binary.BigEndian, seqZone(0, 0x80000, uapi.ZCOND_ZC1_EMPTY))

	sc, err := Decode(VariantA, buf, 512)
	require.NoError(t, err)
	hdr := sc.Header()
	assert.Equal(t, uint64(0x0000_0000_ffff), hdr.MaxLBA, "maximum lba keeps the low 48 bits")
	assert.Equal(t, Same(1), hdr.Same)
	assert.Equal(t, "all zones are same size", hdr.Same.String())
}

func TestMainlineCapacity(t *testing.T) {
	z := uapi.BlkZone{Start: 0x1000, Len: 0x1000, WP: 0x1000, Type: 2, Cond: 1, Capacity: 0xc00}

	t.Run("reported", func(t *testing.T) {
		sc, err := Decode(VariantC, mainlineResponse(512, 1, uapi.BLK_ZONE_REP_CAPACITY, z), 512)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(0xc00), got[0].Capacity)
	})

	t.Run("defaults to length", func(t *testing.T) {
		sc, err := Decode(VariantC, mainlineResponse(512, 1, 0, z), 512)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(0x1000), got[0].Capacity)
	})
}

func TestWritePointerBeforeStart(t *testing.T) {
	bad := seqZone(2, 0x80000, uapi.ZCOND_ZC4_CLOSED)
	bad.LBAWptr = bad.LBAStart - 1
	buf := legacyResponse(512, 3, binary.BigEndian,
		seqZone(0, 0x80000, uapi.ZCOND_ZC1_EMPTY),
		seqZone(1, 0x80000, uapi.ZCOND_ZC1_EMPTY),
		bad,
	)

	sc, err := Decode(VariantA, buf, 512)
	require.NoError(t, err)
	got, err := sc.All()
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, got, 2)

	t.Run("ignored without a write pointer", func(t *testing.T) {
		cv := uapi.ZoneDescriptor{
			Type:     uapi.ZTYP_CONVENTIONAL,
			Length:   0x80000,
			LBAStart: 0x80000,
		}
		sc, err := Decode(VariantA, legacyResponse(512, 1, binary.BigEndian, cv), 512)
		require.NoError(t, err)
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, CondNotWP, got[0].Condition)
		assert.Zero(t, got[0].Written())
	})
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(VariantA, make([]byte, 32), 32)
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = Decode(VariantC, make([]byte, 512), 1024)
	assert.ErrorIs(t, err, ErrShortBuffer)

	sc, err := Decode(VariantC, make([]byte, 16), 16)
	require.NoError(t, err)
	assert.False(t, sc.Next())
}

func TestEndToEnd(t *testing.T) {
	first := uapi.BlkZone{
		Start: 0,
		Len:   0x800,
		WP:    0x100,
		Type:  uapi.ZTYP_SEQ_WRITE_REQUIRED,
		Cond:  uapi.ZCOND_ZC2_OPEN_IMPLICIT,
	}
	want := Descriptor{
		Type:         TypeSeqWriteRequired,
		Condition:    CondImplicitOpen,
		Start:        0,
		Length:       0x800,
		WritePointer: 0x100,
		Capacity:     0x800,
	}

	check := func(t *testing.T, sc *Scanner) {
		t.Helper()
		got, err := sc.All()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
		assert.False(t, sc.Header().Truncated)
		assert.Equal(t, uint32(2), sc.Header().Stated)
	}

	t.Run("mainline header", func(t *testing.T) {
		buf := mainlineResponse(uapi.BlkZoneReportHeaderSize+2*uapi.BlkZoneSize, 2, 0, first)
		sc, err := Decode(VariantC, buf, len(buf))
		require.NoError(t, err)
		check(t, sc)
	})

	t.Run("64-byte header", func(t *testing.T) {
		// 0x800 is not a canonical zone length, so native data is detected
		buf := legacyResponse(uapi.ZoneReportHeaderSize+2*uapi.ZoneDescriptorSize, 2, binary.LittleEndian,
			uapi.ZoneDescriptor{
				Type:    uapi.ZTYP_SEQ_WRITE_REQUIRED,
				Flags:   uapi.ZCOND_ZC2_OPEN_IMPLICIT << uapi.ZFLAG_COND_SHIFT,
				Length:  0x800,
				LBAWptr: 0x100,
			})
		sc, err := Decode(VariantA, buf, len(buf))
		require.NoError(t, err)
		check(t, sc)
		assert.False(t, sc.Header().BigEndian())
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Oi", CondImplicitOpen.Short())
	assert.Equal(t, "ro", CondReadOnly.Short())
	assert.Equal(t, "x7", Condition(7).Short())
	assert.Equal(t, "reserved-0x7", Condition(7).String())
	assert.False(t, Condition(7).Known())
	assert.True(t, CondOffline.Known())
	assert.Equal(t, "SEQ_WRITE_REQUIRED", TypeSeqWriteRequired.String())
	assert.Equal(t, "non-wp", FilterNoWritePointer.String())

	v, err := ParseVariant(" B ")
	require.NoError(t, err)
	assert.Equal(t, VariantB, v)
	_, err = ParseVariant("d")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

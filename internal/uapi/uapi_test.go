package uapi

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// Test structure sizes match kernel expectations
func TestStructSizes(t *testing.T) {
	tests := []struct {
		name     string
		size     uintptr
		expected int
	}{
		{"ZoneReport", unsafe.Sizeof(ZoneReport{}), 64},
		{"ZoneDescriptor", unsafe.Sizeof(ZoneDescriptor{}), 64},
		{"BlkZoneReport", unsafe.Sizeof(BlkZoneReport{}), 16},
		{"BlkZone", unsafe.Sizeof(BlkZone{}), 64},
		{"BlkZoneRange", unsafe.Sizeof(BlkZoneRange{}), 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int(tt.size) != tt.expected {
				t.Errorf("%s size = %d, want %d", tt.name, tt.size, tt.expected)
			}
		})
	}
}

// Packed records must not pick up Go padding
func TestPackedMarshalSizes(t *testing.T) {
	if got := len(MarshalGetReport(&ZoneGetReport{}, false)); got != 13 {
		t.Errorf("get_report = %d bytes, want 13", got)
	}
	if got := len(MarshalGetReport(&ZoneGetReport{}, true)); got != 14 {
		t.Errorf("get_report with FUA = %d bytes, want 14", got)
	}
	if got := len(Marshal(&ZoneAction{})); got != 14 {
		t.Errorf("zone_action = %d bytes, want 14", got)
	}
}

func TestIoctlNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		// values from linux/blkzoned.h on x86-64
		{"BLKREPORTZONE", BLKREPORTZONE, 0xc0101282},
		{"BLKRESETZONE", BLKRESETZONE, 0x40101283},
		{"BLKOPENZONE", BLKOPENZONE, 0x40101286},
		{"BLKCLOSEZONE", BLKCLOSEZONE, 0x40101287},
		{"BLKFINISHZONE", BLKFINISHZONE, 0x40101288},
		{"BLKREPORT", BLKREPORT, 0xc0401282},
		{"BLKOPENZONE_LEGACY", BLKOPENZONE_LEGACY, 0x1283},
		{"BLKCLOSEZONE_LEGACY", BLKCLOSEZONE_LEGACY, 0x1284},
		{"BLKRESETZONE_LEGACY", BLKRESETZONE_LEGACY, 0x1285},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = 0x%x, want 0x%x", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestIoctlDecode(t *testing.T) {
	if DirectionOf(BLKREPORTZONE) != DirReadWrite {
		t.Errorf("BLKREPORTZONE direction = %s", DirectionOf(BLKREPORTZONE))
	}
	if DirectionOf(BLKZONEACTION) != DirWrite {
		t.Errorf("BLKZONEACTION direction = %s", DirectionOf(BLKZONEACTION))
	}
	if DirectionOf(BLKOPENZONE_LEGACY) != DirNone {
		t.Errorf("BLKOPENZONE_LEGACY direction = %s", DirectionOf(BLKOPENZONE_LEGACY))
	}
	if IoctlSize(BLKZONEACTION) != ZoneActionSize {
		t.Errorf("BLKZONEACTION size = %d", IoctlSize(BLKZONEACTION))
	}
	if IoctlNr(BLKFINISHZONE) != 136 {
		t.Errorf("BLKFINISHZONE nr = %d", IoctlNr(BLKFINISHZONE))
	}
}

// Test marshaling and unmarshaling
func TestMarshalUnmarshal(t *testing.T) {
	t.Run("ZoneGetReport", func(t *testing.T) {
		original := &ZoneGetReport{
			ZoneLocatorLBA:  0x80000,
			ReturnPageCount: 4096,
			ReportOption:    ZOPT_ZC1_EMPTY,
			ForceUnitAccess: 1,
		}

		data := MarshalGetReport(original, true)
		if binary.NativeEndian.Uint64(data[0:8]) != original.ZoneLocatorLBA {
			t.Errorf("lba bytes = %x", data[0:8])
		}

		var got ZoneGetReport
		if err := Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != *original {
			t.Errorf("got %+v, want %+v", got, *original)
		}
	})

	t.Run("ZoneAction", func(t *testing.T) {
		original := &ZoneAction{ZoneLocatorLBA: 0x100000, Action: ZONE_ACTION_RESET, ForceUnitAccess: 1}

		var got ZoneAction
		if err := Unmarshal(Marshal(original), &got); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != *original {
			t.Errorf("got %+v, want %+v", got, *original)
		}
	})

	t.Run("BlkZoneRange", func(t *testing.T) {
		original := &BlkZoneRange{Sector: 0x80000, NrSectors: 0x100000}

		var got BlkZoneRange
		if err := Unmarshal(Marshal(original), &got); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != *original {
			t.Errorf("got %+v, want %+v", got, *original)
		}
	})

	t.Run("InsufficientData", func(t *testing.T) {
		var r BlkZoneRange
		if err := Unmarshal(make([]byte, 8), &r); err != ErrInsufficientData {
			t.Errorf("err = %v, want ErrInsufficientData", err)
		}
		if err := Unmarshal(nil, &struct{}{}); err != ErrInvalidType {
			t.Errorf("err = %v, want ErrInvalidType", err)
		}
	})
}

func TestZoneDescriptorByteOrder(t *testing.T) {
	d := &ZoneDescriptor{
		Type:     ZTYP_SEQ_WRITE_REQUIRED,
		Flags:    ZCOND_ZC4_CLOSED<<ZFLAG_COND_SHIFT | ZFLAG_NON_SEQ,
		Length:   0x80000,
		LBAStart: 0x100000,
		LBAWptr:  0x100800,
	}

	buf := make([]byte, ZoneDescriptorSize)
	PutZoneDescriptor(buf, d, binary.BigEndian)

	if buf[8+7] != 0x00 || buf[8+5] != 0x08 {
		t.Errorf("length not big-endian: %x", buf[8:16])
	}

	got, err := ParseZoneDescriptor(buf, binary.BigEndian)
	if err != nil {
		t.Fatalf("ParseZoneDescriptor: %v", err)
	}
	if *got != *d {
		t.Errorf("got %+v, want %+v", got, d)
	}
	if got.Condition() != ZCOND_ZC4_CLOSED {
		t.Errorf("Condition() = %d", got.Condition())
	}
}

func TestBlkZoneLayout(t *testing.T) {
	z := &BlkZone{Start: 1, Len: 2, WP: 3, Type: 2, Cond: 3, NonSeq: 1, Reset: 1, Capacity: 4}
	buf := make([]byte, BlkZoneSize)
	PutBlkZone(buf, z)

	if buf[24] != 2 || buf[25] != 3 || buf[26] != 1 || buf[27] != 1 {
		t.Errorf("byte fields misplaced: %x", buf[24:28])
	}

	got, err := ParseBlkZone(buf)
	if err != nil {
		t.Fatalf("ParseBlkZone: %v", err)
	}
	if *got != *z {
		t.Errorf("got %+v, want %+v", got, z)
	}
}

func TestCommandString(t *testing.T) {
	c := &Command{Op: BLKOPENZONE_LEGACY, Arg: 0x80000, Name: "BLKOPENZONE"}
	if c.HasBuffer() {
		t.Error("scalar command reports a buffer")
	}
	if s := c.String(); s != "BLKOPENZONE(0x00001283, arg=0x80000)" {
		t.Errorf("String() = %q", s)
	}
}

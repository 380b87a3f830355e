package console

// scanTable maps a "set 1" PC keyboard scancode to its ASCII byte, the
// same table teacher's kbd_init builds (credited there to xv6).
var scanTable = buildScanTable()

func buildScanTable() map[int]byte {
	const no = 0
	tm := []byte{
		no, 0x1B, '1', '2', '3', '4', '5', '6', // 0x00
		'7', '8', '9', '0', '-', '=', '\b', '\t',
		'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', // 0x10
		'o', 'p', '[', ']', '\n', no, 'a', 's',
		'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', // 0x20
		'\'', '`', no, '\\', 'z', 'x', 'c', 'v',
		'b', 'n', 'm', ',', '.', '/', no, '*', // 0x30
		no, ' ', no, no, no, no, no, no,
		no, no, no, no, no, no, no, '7', // 0x40
		'8', '9', '-', '4', '5', '6', '+', '1',
		'2', '3', '0', '.', no, no, no, no, // 0x50
	}
	km := make(map[int]byte)
	for i, c := range tm {
		if c != no {
			km[i] = c
		}
	}
	return km
}

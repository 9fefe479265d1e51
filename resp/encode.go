package resp

import "bytes"

// Encode serializes a command as an array of bulk strings: verb followed by
// args, each as "$len\r\n<bytes>\r\n", wrapped in "*N\r\n". The encoder never
// interprets argument bytes — binary-safe by construction. Grounded on
// redis/protocol/reply.go's MultiBulkReply.ToBytes, adapted from [][]byte
// frames to a verb+args command shape.
func Encode(verb string, args []string) []byte {
	n := 1 + len(args)
	size := 1 + len(formatInt(int64(n))) + 2
	size += bulkLen(verb)
	for _, a := range args {
		size += bulkLen(a)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteByte('*')
	buf.WriteString(formatInt(int64(n)))
	buf.WriteString("\r\n")
	writeBulk(buf, verb)
	for _, a := range args {
		writeBulk(buf, a)
	}
	return buf.Bytes()
}

func bulkLen(s string) int {
	return 1 + len(formatInt(int64(len(s)))) + 2 + len(s) + 2
}

func writeBulk(buf *bytes.Buffer, s string) {
	buf.WriteByte('$')
	buf.WriteString(formatInt(int64(len(s))))
	buf.WriteString("\r\n")
	buf.WriteString(s)
	buf.WriteString("\r\n")
}

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compressedSlot records where one page's zstd-compressed bytes live in the
// backing file of a compressing FileDiskManager.
type compressedSlot struct {
	offset int64
	length int64
}

// compressedRecordHeaderSize is the length prefix written before each
// compressed page's bytes: 4-byte little-endian length.
const compressedRecordHeaderSize = 4

func (dm *FileDiskManager) readCompressed(pageID PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("read page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}
	slot, ok := dm.offsets[pageID]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}

	compressed := make([]byte, slot.length)
	if _, err := dm.file.ReadAt(compressed, slot.offset+compressedRecordHeaderSize); err != nil {
		return fmt.Errorf("read compressed page %d: %w", pageID, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(compressed, make([]byte, 0, PageSize))
	if err != nil {
		return fmt.Errorf("decompress page %d: %w", pageID, err)
	}
	if len(out) != PageSize {
		return fmt.Errorf("decompressed page %d has wrong size %d", pageID, len(out))
	}
	copy(buf, out)
	dm.totalReads++
	return nil
}

func (dm *FileDiskManager) writeCompressed(pageID PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("write page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(buf, nil)

	record := make([]byte, compressedRecordHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(record[0:4], uint32(len(compressed)))
	copy(record[compressedRecordHeaderSize:], compressed)

	offset := dm.nextOffset
	if _, err := dm.file.WriteAt(record, offset); err != nil {
		return fmt.Errorf("write compressed page %d: %w", pageID, err)
	}
	dm.offsets[pageID] = compressedSlot{offset: offset, length: int64(len(compressed))}
	dm.nextOffset += int64(len(record))
	dm.totalWrites++
	return nil
}

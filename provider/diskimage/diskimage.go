// Copyright (c) 2021 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package diskimage opens raw disk images. Partition tables (MBR and GPT)
// are read with go-diskfs, logical partitions of extended MBR entries are
// followed through their EBR chain. NTFS volumes are parsed with go-ntfs,
// FAT32 volumes with go-diskfs.
package diskimage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/pkg/errors"
	ntfs "www.velocidex.com/golang/go-ntfs/parser"

	"github.com/forensicanalysis/triage/provider"
)

const (
	defaultSectorSize = 512
	bootSectorSize    = 512
	ntfsOEMID         = "NTFS    "
	fat32Type         = "FAT32   "
	rootMFTEntry      = 5

	mbrEntries      = 446
	mbrEntrySize    = 16
	firstLogical    = 5
	maxLogicals     = 128
	mbrSignatureLow = 0x55
	mbrSignatureHi  = 0xaa
)

var partitionTypes = map[byte]string{
	0x01: "FAT12",
	0x04: "FAT16 <32M",
	0x05: "Extended",
	0x06: "FAT16",
	0x07: "HPFS/NTFS/exFAT",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x0f: "W95 Extended (LBA)",
	0x17: "Hidden HPFS/NTFS",
	0x27: "Hidden NTFS WinRE",
	0x82: "Linux swap",
	0x83: "Linux",
	0x85: "Linux extended",
	0x8e: "Linux LVM",
	0xee: "GPT protective",
}

func isExtended(t byte) bool {
	return t == 0x05 || t == 0x0f || t == 0x85
}

// Provider opens raw (dd) disk and volume images.
type Provider struct{}

// New creates a disk image provider.
func New() *Provider {
	return &Provider{}
}

// OpenImage opens the image read only and reads its partition table. Images
// without a partition table are treated as a single volume.
func (p *Provider) OpenImage(url string) (provider.Image, error) {
	d, err := diskfs.Open(url, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}

	img := &image{disk: d, reader: d.File, size: d.Size, sectorSize: d.LogicalBlocksize, lengths: map[int64]int64{}}
	if img.sectorSize <= 0 {
		img.sectorSize = defaultSectorSize
	}
	img.partitions = img.readPartitions()
	for _, partition := range img.partitions {
		img.lengths[partition.Start*img.sectorSize] = partition.Length * img.sectorSize
	}
	return img, nil
}

type image struct {
	disk       *disk.Disk
	reader     io.ReaderAt
	size       int64
	sectorSize int64
	partitions []provider.Partition
	// partition length in bytes by start offset
	lengths map[int64]int64
}

func (i *image) readPartitions() []provider.Partition {
	var parts []provider.Partition

	// a volume boot record also carries the 0x55aa signature
	if volumeType(i.bootSector(0)) == "" {
		table, err := i.disk.GetPartitionTable()
		if err == nil {
			for n, part := range table.GetPartitions() {
				switch part := part.(type) {
				case *mbr.Partition:
					t := byte(part.Type)
					if part.Type == mbr.Empty {
						continue
					}
					if isExtended(t) {
						parts = append(parts, i.logicalPartitions(int64(part.Start))...)
						continue
					}
					parts = append(parts, provider.Partition{
						Index:       n + 1,
						Description: mbrDescription(t),
						Start:       int64(part.Start),
						Length:      int64(part.Size),
					})
				case *gpt.Partition:
					if part.Type == gpt.Unused {
						continue
					}
					description := part.Name
					if description == "" {
						description = string(part.Type)
					}
					parts = append(parts, provider.Partition{
						Index:       n + 1,
						Description: description,
						Start:       int64(part.Start),
						Length:      int64(part.End-part.Start) + 1,
					})
				}
			}
		}
	}

	if len(parts) == 0 {
		// no partition table, a bare volume starts at sector 0
		parts = append(parts, provider.Partition{
			Index:       1,
			Description: "volume",
			Start:       0,
			Length:      i.size / i.sectorSize,
		})
	}
	return parts
}

// logicalPartitions follows the EBR chain of an extended partition that
// starts at sector base. The first entry of an EBR is relative to the EBR
// itself, the link to the next EBR is relative to base. Logical partitions
// are numbered from 5.
func (i *image) logicalPartitions(base int64) []provider.Partition {
	var parts []provider.Partition
	seen := map[int64]bool{}
	ebr := base
	for n := 0; n < maxLogicals && !seen[ebr]; n++ {
		seen[ebr] = true

		b := make([]byte, bootSectorSize)
		if read, _ := i.reader.ReadAt(b, ebr*i.sectorSize); read < bootSectorSize {
			break
		}
		if b[510] != mbrSignatureLow || b[511] != mbrSignatureHi {
			break
		}

		t, start, length := mbrEntry(b, 0)
		if t != 0 && length > 0 {
			parts = append(parts, provider.Partition{
				Index:       firstLogical + len(parts),
				Description: mbrDescription(t),
				Start:       ebr + start,
				Length:      length,
			})
		}

		t, next, _ := mbrEntry(b, 1)
		if !isExtended(t) || next == 0 {
			break
		}
		ebr = base + next
	}
	return parts
}

func mbrEntry(b []byte, n int) (t byte, start, length int64) {
	entry := b[mbrEntries+n*mbrEntrySize : mbrEntries+(n+1)*mbrEntrySize]
	return entry[4], int64(binary.LittleEndian.Uint32(entry[8:12])), int64(binary.LittleEndian.Uint32(entry[12:16]))
}

func mbrDescription(t byte) string {
	if name, ok := partitionTypes[t]; ok {
		return fmt.Sprintf("%s (0x%02x)", name, t)
	}
	return fmt.Sprintf("Unknown (0x%02x)", t)
}

func (i *image) bootSector(offset int64) []byte {
	boot := make([]byte, bootSectorSize)
	if n, _ := i.reader.ReadAt(boot, offset); n < bootSectorSize {
		return nil
	}
	return boot
}

// volumeType returns "ntfs" or "fat32" for a volume boot record.
func volumeType(boot []byte) string {
	switch {
	case len(boot) < bootSectorSize:
		return ""
	case string(boot[3:11]) == ntfsOEMID:
		return "ntfs"
	case string(boot[82:90]) == fat32Type:
		return "fat32"
	default:
		return ""
	}
}

func (i *image) Partitions() ([]provider.Partition, error) {
	return i.partitions, nil
}

func (i *image) SectorSize() int64 {
	return i.sectorSize
}

// Mount parses the NTFS or FAT32 volume at offset. Other filesystems are
// reported as provider.ErrNoFilesystem.
func (i *image) Mount(offset int64) (fs provider.Filesystem, err error) {
	boot := make([]byte, bootSectorSize)
	n, err := i.reader.ReadAt(boot, offset)
	if n < bootSectorSize {
		if err == io.EOF {
			return nil, provider.ErrNoFilesystem
		}
		return nil, errors.Wrapf(err, "could not read boot sector at %d", offset)
	}

	defer func() {
		if r := recover(); r != nil {
			fs, err = nil, errors.Errorf("corrupt volume at %d: %v", offset, r)
		}
	}()

	switch volumeType(boot) {
	case "ntfs":
		return i.mountNTFS(offset)
	case "fat32":
		return i.mountFAT32(offset)
	default:
		return nil, provider.ErrNoFilesystem
	}
}

func (i *image) mountNTFS(offset int64) (provider.Filesystem, error) {
	paged, err := ntfs.NewPagedReader(i.reader, 1024, 10000)
	if err != nil {
		return nil, err
	}
	ctx, err := ntfs.GetNTFSContext(paged, offset)
	if err != nil {
		return nil, errors.Wrap(provider.ErrNoFilesystem, err.Error())
	}
	return &volume{ctx: ctx}, nil
}

func (i *image) mountFAT32(offset int64) (provider.Filesystem, error) {
	length, ok := i.lengths[offset]
	if !ok {
		length = i.size - offset
	}
	fs, err := fat32.Read(i.disk.File, length, offset, i.sectorSize)
	if err != nil {
		return nil, errors.Wrap(provider.ErrNoFilesystem, err.Error())
	}
	return &fatVolume{fs: fs, ids: map[string]uint64{}}, nil
}

func (i *image) Close() error {
	return i.disk.File.Close()
}

type volume struct {
	ctx *ntfs.NTFSContext
}

func (v *volume) Root() (root *provider.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			root, err = nil, errors.Errorf("corrupt root directory: %v", r)
		}
	}()

	if _, err := v.ctx.GetMFT(rootMFTEntry); err != nil {
		return nil, err
	}
	return &provider.Entry{
		Name:      "/",
		Path:      "/",
		ID:        rootMFTEntry,
		Kind:      provider.KindDirectory,
		Allocated: true,
		Meta:      true,
	}, nil
}

func (v *volume) ReadDir(dir *provider.Entry) (entries []*provider.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries, err = nil, errors.Errorf("corrupt directory %s: %v", dir.Path, r)
		}
	}()

	mftEntry, err := v.ctx.GetMFT(int64(dir.ID))
	if err != nil {
		return nil, err
	}

	for _, info := range ntfs.ListDir(v.ctx, mftEntry) {
		if info == nil {
			continue
		}
		entry := &provider.Entry{
			Name:      info.Name,
			Path:      strings.TrimRight(dir.Path, "/") + "/" + info.Name,
			Size:      info.Size,
			Kind:      provider.KindRegular,
			Allocated: true,
		}
		if info.IsDir {
			entry.Kind = provider.KindDirectory
		}
		if id, err := parseMFTID(info.MFTId); err == nil {
			entry.ID = id
			entry.Meta = true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseMFTID reads the record number from ids like "46" or "46-128-1".
func parseMFTID(id string) (uint64, error) {
	record := strings.SplitN(id, "-", 2)[0]
	return strconv.ParseUint(record, 10, 64)
}

func (v *volume) Open(entry *provider.Entry) (content provider.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			content, err = nil, errors.Errorf("corrupt data stream %s: %v", entry.Path, r)
		}
	}()

	data, err := ntfs.GetDataForPath(v.ctx, entry.Path)
	if err != nil {
		return nil, err
	}
	return &safeReader{reader: data, name: entry.Path}, nil
}

// safeReader turns parser panics while reading a data stream into read
// errors.
type safeReader struct {
	reader io.ReaderAt
	name   string
}

func (r *safeReader) ReadAt(p []byte, off int64) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, errors.Errorf("corrupt data stream %s at %d: %v", r.name, off, rec)
		}
	}()
	return r.reader.ReadAt(p, off)
}

func (r *safeReader) Close() error {
	return nil
}

// fatVolume hands out ids in the order paths are first seen, FAT has no
// inode numbers.
type fatVolume struct {
	fs  *fat32.FileSystem
	mu  sync.Mutex
	ids map[string]uint64
}

func (v *fatVolume) id(p string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.ids[p]; ok {
		return id
	}
	id := uint64(len(v.ids) + 1)
	v.ids[p] = id
	return id
}

func (v *fatVolume) Root() (*provider.Entry, error) {
	if _, err := v.fs.ReadDir("/"); err != nil {
		return nil, err
	}
	return &provider.Entry{
		Name:      "/",
		Path:      "/",
		ID:        v.id("/"),
		Kind:      provider.KindDirectory,
		Allocated: true,
		Meta:      true,
	}, nil
}

func (v *fatVolume) ReadDir(dir *provider.Entry) (entries []*provider.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries, err = nil, errors.Errorf("corrupt directory %s: %v", dir.Path, r)
		}
	}()

	infos, err := v.fs.ReadDir(dir.Path)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		p := strings.TrimRight(dir.Path, "/") + "/" + info.Name()
		entry := &provider.Entry{
			Name:      info.Name(),
			Path:      p,
			Size:      info.Size(),
			Kind:      provider.KindRegular,
			Allocated: true,
			Meta:      true,
		}
		if info.IsDir() {
			entry.Kind = provider.KindDirectory
		}
		if info.Name() != "." && info.Name() != ".." {
			entry.ID = v.id(p)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (v *fatVolume) Open(entry *provider.Entry) (content provider.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			content, err = nil, errors.Errorf("corrupt file %s: %v", entry.Path, r)
		}
	}()

	f, err := v.fs.OpenFile(entry.Path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return &safeReader{reader: &seekReader{f: f}, name: entry.Path}, nil
}

// seekReader reads at an offset of a file that can only seek and read.
type seekReader struct {
	mu sync.Mutex
	f  io.ReadSeeker
}

func (r *seekReader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r.f, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Package pciids 提供 PCI ID 数据库 (pci.ids) 的名称查询功能
//
// The database is line oriented. A vendor line starts with the vendor's
// hex ID; the devices of that vendor follow on lines indented by one tab.
// Lines starting with '#' are comments.
//
//	1002  Advanced Micro Devices, Inc. [AMD/ATI]
//		67df  Ellesmere [Radeon RX 470/480/570/570X/580/580X/590]
//			1002 0b31  Radeon RX 580
package pciids

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/AnalyseDeCircuit/gpuproc/internal/config"
	"github.com/AnalyseDeCircuit/gpuproc/pkg/types"
)

const (
	// vendorNameColumn is where the name starts on a vendor line
	// ("1002" + separator).
	vendorNameColumn = 4
	// deviceNameColumn is where the name starts on a device line
	// ("\t" + "67df").
	deviceNameColumn = 5
)

// Database is the loaded content of one pci.ids file. It is read-only
// once opened.
type Database struct {
	path    string
	content string
}

// Open loads the first candidate that exists, even when it is empty.
// Missing candidates are skipped; any other read error is returned. If no candidate exists the
// database is empty and every lookup leaves the names unresolved.
func Open(paths []string, logger *slog.Logger) (*Database, error) {
	for _, path := range paths {
		content, err := readDatabase(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read identity database %s: %w", path, err)
		}
		if content == "" {
			logger.Warn("pci.ids file is empty, can't translate device id to vendor information", "path", path)
		} else {
			logger.Debug("using identity database", "path", path)
		}
		return &Database{path: path, content: content}, nil
	}

	logger.Warn("pci.ids file not found, can't translate device id to vendor information",
		"candidates", strings.Join(paths, ","))
	return &Database{}, nil
}

// defaultPaths lists the candidates Lookup tries.
var defaultPaths = config.DefaultPCIIDsPaths

// Lookup opens the default candidates and resolves one vendor/device pair.
func Lookup(vendor, device string) (types.Identity, error) {
	db, err := Open(defaultPaths(), slog.Default())
	if err != nil {
		return types.Identity{VendorID: vendor, DeviceID: device}, err
	}
	return db.Lookup(vendor, device), nil
}

// Path returns the file the database was loaded from, or "" when none
// was found.
func (db *Database) Path() string {
	return db.path
}

// Lookup resolves vendor and device (lowercase hex, no "0x") to names.
// The first line starting with the vendor ID is taken as the vendor
// entry. The device name is only searched within that vendor's block.
func (db *Database) Lookup(vendor, device string) types.Identity {
	identity := types.Identity{VendorID: vendor, DeviceID: device}

	scanner := bufio.NewScanner(strings.NewReader(db.content))
	// No line, however long, may end the walk early.
	scanner.Buffer(make([]byte, 0, 64*1024), len(db.content)+1)
	for scanner.Scan() {
		if !strings.HasPrefix(scanner.Text(), vendor) {
			continue
		}
		vendorName := column(scanner.Text(), vendorNameColumn)
		identity.VendorName = &vendorName

		devicePrefix := "\t" + device
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, devicePrefix):
				deviceName := column(line, deviceNameColumn)
				identity.DeviceName = &deviceName
				return identity
			case strings.HasPrefix(line, "#"), strings.HasPrefix(line, "\t"):
				// Comment, another device, or a subsystem line.
			default:
				// Next vendor or section marker.
				return identity
			}
		}
		return identity
	}
	return identity
}

// column returns line[start:] trimmed, or "" if start is past the end
// or does not fall on a character boundary.
func column(line string, start int) string {
	if start > len(line) {
		return ""
	}
	if start < len(line) && !utf8.RuneStart(line[start]) {
		return ""
	}
	return strings.TrimSpace(line[start:])
}

// readDatabase reads path, decompressing it when it ends in ".gz".
func readDatabase(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return "", err
		}
		defer gzReader.Close()
		reader = gzReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Package initramfs populates a ramfs store from a boot archive. Both tar
// and zip archives are supported; the boot chain passes whichever image
// the bootloader left in memory.
package initramfs

import (
	"archive/tar"
	"archive/zip"
	"io"
	"io/ioutil"
	"strings"

	"github.com/OpenArc-1/Ark-sub001/log"
	"github.com/OpenArc-1/Ark-sub001/ramfs"
	"github.com/pkg/errors"
)

// FromTar reads a tar stream into store. Directories become ramfs
// directory entries; regular files are copied whole. Other entry kinds
// (symlinks, devices) are skipped.
func FromTar(store *ramfs.Store, r io.Reader) error {
	tr := tar.NewReader(r)

	count := 0

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return errors.Wrapf(err, "reading initramfs tar")
		}

		name := cleanName(hdr.Name)
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := addDir(store, name); err != nil {
				return err
			}

		case tar.TypeReg:
			data, err := ioutil.ReadAll(tr)
			if err != nil {
				return errors.Wrapf(err, "reading initramfs entry %q", name)
			}

			if err := addFile(store, name, data); err != nil {
				return err
			}

			count++

		default:
			log.L.Debug("skipping initramfs entry", "name", name, "type", hdr.Typeflag)
		}
	}

	log.L.Info("initramfs populated", "format", "tar", "files", count)

	return nil
}

// FromZip reads a zip archive into store.
func FromZip(store *ramfs.Store, r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return errors.Wrapf(err, "opening initramfs zip")
	}

	count := 0

	for _, f := range zr.File {
		name := cleanName(f.Name)
		if name == "" {
			continue
		}

		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			if err := addDir(store, name); err != nil {
				return err
			}

			continue
		}

		rc, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "opening initramfs entry %q", name)
		}

		data, err := ioutil.ReadAll(rc)
		rc.Close()

		if err != nil {
			return errors.Wrapf(err, "reading initramfs entry %q", name)
		}

		if err := addFile(store, name, data); err != nil {
			return err
		}

		count++
	}

	log.L.Info("initramfs populated", "format", "zip", "files", count)

	return nil
}

// addFile creates the parent directory chain, then the file. Zero-length
// archive members are skipped: the store rejects empty files and a boot
// archive has no use for them.
func addFile(store *ramfs.Store, name string, data []byte) error {
	if len(data) == 0 {
		log.L.Debug("skipping empty initramfs file", "name", name)
		return nil
	}

	if i := strings.LastIndexByte(name, '/'); i > 0 {
		if err := addDir(store, name[:i]); err != nil {
			return err
		}
	}

	if err := store.AddFile("/"+name, data, len(data)); err != nil {
		return errors.Wrapf(err, "adding initramfs file %q", name)
	}

	return nil
}

// addDir creates every directory along the path. Mkdir is idempotent, so
// archives that repeat directories are fine.
func addDir(store *ramfs.Store, name string) error {
	parts := strings.Split(name, "/")

	path := ""
	for _, part := range parts {
		if part == "" {
			continue
		}

		path += "/" + part

		if err := store.Mkdir(path); err != nil {
			return errors.Wrapf(err, "adding initramfs dir %q", path)
		}
	}

	return nil
}

func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "/")

	if name == "." {
		return ""
	}

	return name
}

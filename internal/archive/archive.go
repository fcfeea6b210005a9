// Package archive creates and extracts the gzip-compressed tar bundles
// used for backups and vendor-provided runtime archives. A backup holds
// one directory entry with the installed binaries plus the daemon JSON
// configuration file.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// BinaryDirName is the canonical name of the binaries directory inside a backup.
	BinaryDirName = "bin"

	// ConfigMemberName is the canonical name of the daemon config inside a backup.
	ConfigMemberName = "dockerd.json"

	// VendorDirName is the top-level directory a vendor runtime archive must contain.
	VendorDirName = "docker"

	// ComposeBinaryName is the compose binary expected among the backed-up binaries.
	ComposeBinaryName = "docker-compose"

	dirPermissions = 0o755
)

var (
	// ErrBackupWriteFailed is returned when a backup archive was not produced.
	ErrBackupWriteFailed = errors.New("backup archive was not created")
	// ErrMissingBinaries is returned when the binaries directory is absent after extraction.
	ErrMissingBinaries = errors.New("backup contains no binaries directory")
	// ErrMissingCompose is returned when the compose binary is absent after extraction.
	ErrMissingCompose = errors.New("backup contains no compose binary")
	// ErrMissingConfig is returned when the daemon config is absent after extraction.
	ErrMissingConfig = errors.New("backup contains no daemon config")
	// ErrExtractFailed is returned when a vendor archive does not yield the expected layout.
	ErrExtractFailed = errors.New("archive extraction failed")
	// errUnsafePath guards against tar entries escaping the destination directory.
	errUnsafePath = errors.New("archive member path escapes destination")
)

// CreateBackup bundles binDir's contents (stored under the canonical
// binaries directory name) and the daemon config file into one
// compressed tar at destPath.
func CreateBackup(binDir, configFile, destPath string) error {
	out, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupWriteFailed, err)
	}

	gzWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzWriter)

	err = addDirectory(tarWriter, binDir, BinaryDirName)
	if err == nil {
		err = addFile(tarWriter, configFile, ConfigMemberName)
	}

	for _, closeErr := range []error{tarWriter.Close(), gzWriter.Close(), out.Close()} {
		if err == nil {
			err = closeErr
		}
	}

	if err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("%w: %v", ErrBackupWriteFailed, err)
	}

	if _, err = os.Stat(destPath); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupWriteFailed, err)
	}

	return nil
}

// ExtractBackup unpacks a backup archive into destDir and verifies the
// expected members, renaming the extracted binaries directory to its
// canonical name when the archive used a different one.
func ExtractBackup(archivePath, destDir string) error {
	if err := extract(archivePath, destDir); err != nil {
		return err
	}

	if err := canonicalizeBinaryDir(destDir); err != nil {
		return err
	}

	binDir := filepath.Join(destDir, BinaryDirName)
	if !isDir(binDir) {
		return fmt.Errorf("%w: %s", ErrMissingBinaries, binDir)
	}

	if !isRegular(filepath.Join(binDir, ComposeBinaryName)) {
		return fmt.Errorf("%w: %s", ErrMissingCompose, filepath.Join(binDir, ComposeBinaryName))
	}

	if !isRegular(filepath.Join(destDir, ConfigMemberName)) {
		return fmt.Errorf("%w: %s", ErrMissingConfig, filepath.Join(destDir, ConfigMemberName))
	}

	return nil
}

// ExtractDownloaded unpacks a vendor-provided runtime archive into destDir
// and verifies the expected top-level directory appeared.
func ExtractDownloaded(archivePath, destDir string) error {
	if err := extract(archivePath, destDir); err != nil {
		return err
	}

	if !isDir(filepath.Join(destDir, VendorDirName)) {
		return fmt.Errorf("%w: %s not found after extracting %s",
			ErrExtractFailed, VendorDirName, archivePath)
	}

	return nil
}

// addDirectory writes dir's tree into the tar under memberName.
func addDirectory(tw *tar.Writer, dir, memberName string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		name := memberName
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(memberName, rel))
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		linkTarget := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if linkTarget, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}

		header.Name = name
		if entry.IsDir() {
			header.Name += "/"
		}

		if err = tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return copyFileInto(tw, path)
	})
}

// addFile writes a single file into the tar under memberName.
func addFile(tw *tar.Writer, path, memberName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}

	header.Name = memberName
	if err = tw.WriteHeader(header); err != nil {
		return err
	}

	return copyFileInto(tw, path)
}

func copyFileInto(tw *tar.Writer, path string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	return err
}

// extract unpacks a gzip-compressed tar into destDir.
func extract(archivePath, destDir string) error {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	defer func() {
		_ = file.Close()
	}()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtractFailed, archivePath, err)
	}

	defer func() {
		_ = gzReader.Close()
	}()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrExtractFailed, archivePath, err)
		}

		if err = extractMember(tarReader, header, destDir); err != nil {
			return err
		}
	}
}

func extractMember(tarReader *tar.Reader, header *tar.Header, destDir string) error {
	target, err := securePath(destDir, header.Name)
	if err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, dirPermissions)
	case tar.TypeSymlink:
		if err = secureLinkTarget(destDir, target, header.Linkname); err != nil {
			return err
		}

		_ = os.Remove(target)

		return os.Symlink(header.Linkname, target)
	case tar.TypeReg:
		if err = os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
			return err
		}

		out, err := os.OpenFile(filepath.Clean(target),
			os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode())
		if err != nil {
			return err
		}

		//nolint:gosec // Archives are produced by this tool or the vendor; size is bounded by disk.
		_, err = io.Copy(out, tarReader)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}

		return err
	default:
		// Other member types (FIFOs, devices) have no business in these archives.
		return nil
	}
}

// securePath joins member into destDir and rejects traversal outside it.
func securePath(destDir, member string) (string, error) {
	target := filepath.Join(destDir, filepath.Clean("/"+member))
	if !strings.HasPrefix(target, dirPrefix(destDir)) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, member)
	}

	return target, nil
}

// dirPrefix yields the prefix contained paths must carry; the root
// directory already ends in a separator.
func dirPrefix(dir string) string {
	cleaned := filepath.Clean(dir)
	if cleaned == string(os.PathSeparator) {
		return cleaned
	}

	return cleaned + string(os.PathSeparator)
}

// secureLinkTarget rejects symlink members pointing outside destDir;
// later regular members would otherwise extract through the planted link.
func secureLinkTarget(destDir, linkPath, linkName string) error {
	if filepath.IsAbs(linkName) {
		return fmt.Errorf("%w: %s -> %s", errUnsafePath, linkPath, linkName)
	}

	resolved := filepath.Join(filepath.Dir(linkPath), linkName)
	if !strings.HasPrefix(resolved, dirPrefix(destDir)) {
		return fmt.Errorf("%w: %s -> %s", errUnsafePath, linkPath, linkName)
	}

	return nil
}

// canonicalizeBinaryDir renames a solitary extracted directory to the
// canonical binaries name. Backups produced by this tool already use it;
// hand-rolled archives may have stored the directory under another name.
func canonicalizeBinaryDir(destDir string) error {
	if isDir(filepath.Join(destDir, BinaryDirName)) {
		return nil
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return err
	}

	var candidate string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if candidate != "" {
			// More than one directory: nothing to canonicalize safely.
			return nil
		}

		candidate = entry.Name()
	}

	if candidate == "" {
		return nil
	}

	return os.Rename(filepath.Join(destDir, candidate), filepath.Join(destDir, BinaryDirName))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Package archive copies checkpointed database files to a blobstore and back.
//
// An archive is a directory of compressed files plus a catalog:
//
//	<seq>-<uuid>/catalog.json        file list, sizes, CRC32C, codec names
//	<seq>-<uuid>/<file>.<lz4|zstd>   framed blocks of one database file
//	CURRENT                          name of the newest catalog
//
// Each file is cut into chunks that are compressed independently with
// blockcodec, so uploads and downloads stream without buffering a whole
// file. CURRENT is written last; an interrupted upload leaves an orphaned
// directory that the next Prune removes.
package archive

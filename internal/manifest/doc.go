// Package manifest persists the checkpointed state of a database: the
// catalog, the headers of every column's on-disk arrays, the table
// statistics and the location of each primary-key index.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x464d5347 ("GSMF")
//	  Version  (4 bytes) - Format version (currently 1)
//	  Checksum (4 bytes) - CRC32C of payload
//	  Length   (4 bytes) - Payload length in bytes
//
//	Payload:
//	  ID, CreatedAt, NodeGroupSizeLog2, NumDataPages, NextTableID, NextTxID
//	  NumTables (4 bytes), then per table:
//	    ID, Kind, Name, PrimaryKey, SrcTableID, DstTableID, PKIndexPath
//	    Properties[] - name, type, property id
//	    Columns[]    - property id, metadata/nulls/dictionary array headers, null flag
//	  Stats (length-prefixed bytes)
//
// Strings are length-prefixed (2-byte length + bytes).
//
// # Atomic Protocol
//
//  1. Write the manifest to a temporary file, sync it and rename it to
//     MANIFEST-NNNNNN.bin.
//  2. Write CURRENT the same way, naming the new manifest.
//
// Load reads CURRENT to find the active manifest. A crash between the two
// steps leaves CURRENT on the previous manifest.
package manifest

// Package protocol implements the binary wire codec for SignGrid LED signs.
//
// Every frame has the same envelope regardless of transport:
//
//	STX(1) | LENGTH(2, LE) | COMMAND(1) | DATA(N) | CHECKSUM(1) | ID(12) | ETX(1)
//
// LENGTH counts the COMMAND, DATA and CHECKSUM bytes. CHECKSUM is the byte
// sum of LENGTH, COMMAND, DATA and ID modulo 256. ID is the device
// identifier, ASCII, left-padded with '0' to 12 characters.
//
// Commands form a tagged union: the COMMAND byte selects the DATA layout.
// Encode rejects out-of-domain field values instead of clamping them, and
// Decode validates the envelope before interpreting DATA, so malformed
// input never produces a partially-valid command.
package protocol

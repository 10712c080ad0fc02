// Package cardreset identifies a removable memory card by the content of
// its SPI NOR flash and performs a destructive maintenance operation on it:
// a wipe of fixed regions, a byte-level patch applied through a resumable
// erase+program session, or an in-place header reset.
//
// # References:
//
// SPI Flash
//   - [MX25L3233F]: Macronix MX25L3233F 32Mb Serial NOR Flash datasheet (https://www.macronix.com/Lists/Datasheet/Attachments/8754/MX25L3233F,%203V,%2032Mb,%20v1.7.pdf)
//   - [GD25Q80E]: GigaDevice GD25Q80E 8Mb Serial NOR Flash datasheet (https://www.gigadevice.com/product/flash/product-series/spi-nor-flash/gd25q80e)
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
package cardreset

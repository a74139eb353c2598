// Package ocr turns PDF payloads into text and metadata.
//
// Text extraction is delegated to an external command (pdftotext by
// default) through the Extractor interface. ParseInfo reads the document
// information dictionary and XMP packet directly from the PDF bytes.
package ocr

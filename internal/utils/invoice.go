package utils

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

const (
	invoiceAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	invoiceSuffixLen = 6
	// invoiceCutoff is the largest multiple of len(invoiceAlphabet) <= 256.
	// Bytes at or above it are redrawn so every character is equally likely.
	invoiceCutoff = 256 - 256%len(invoiceAlphabet)
)

// GenerateInvoiceNumber returns INV-YYYYMMDD-XXXXXX with a random base-36
// suffix.
func GenerateInvoiceNumber(now time.Time) (string, error) {
	suffix, err := invoiceSuffix(rand.Reader, invoiceSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate invoice suffix: %w", err)
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix), nil
}

func invoiceSuffix(r io.Reader, n int) (string, error) {
	suffix := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(suffix) < n {
		chunk := buf[:n-len(suffix)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return "", err
		}
		for _, b := range chunk {
			if int(b) >= invoiceCutoff {
				continue
			}
			suffix = append(suffix, invoiceAlphabet[int(b)%len(invoiceAlphabet)])
		}
	}
	return string(suffix), nil
}

package fieldmap

import "regexp"

var barcodePattern = regexp.MustCompile(`^[0-9]{8,13}$`)

func validateBarcode(s string) error {
	if s == "" {
		return nil
	}

	if !barcodePattern.MatchString(s) {
		return errBarcodeFormat
	}

	return nil
}

var errBarcodeFormat = barcodeFormatError{}

type barcodeFormatError struct{}

func (barcodeFormatError) Error() string { return "barcode does not match ^[0-9]{8,13}$" }

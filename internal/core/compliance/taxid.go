package compliance

var taxIDWeights = [...]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidTaxID reports whether s is an 11 digit tax id with a valid mod-11
// check digit.
func ValidTaxID(s string) bool {
	if len(s) != 11 || !allDigits(s) {
		return false
	}
	sum := 0
	for i, w := range taxIDWeights {
		sum += int(s[i]-'0') * w
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		return false
	}
	return check == int(s[10]-'0')
}

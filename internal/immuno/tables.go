package immuno

// Reference tables from Calis et al. (2013), "Properties of MHC Class I
// Presented Peptides That Enhance Immunogenicity". The per-residue scale
// reflects enrichment of each amino acid among immunogenic peptides; the
// per-position weights emphasize the TCR-facing middle of a 9-mer and
// zero out the conventional anchor-adjacent termini.

// immunoscale maps an amino acid to its immunogenicity contribution.
var immunoscale = map[byte]float64{
	'A': 0.127, 'C': -0.175, 'D': 0.072, 'E': 0.325, 'F': 0.380,
	'G': 0.110, 'H': 0.105, 'I': 0.432, 'K': -0.700, 'L': -0.036,
	'M': -0.570, 'N': -0.021, 'P': -0.036, 'Q': -0.376, 'R': 0.168,
	'S': -0.537, 'T': 0.126, 'V': 0.134, 'W': 0.719, 'Y': -0.012,
}

// immunoweight holds the per-position weights for the 9-mer reference
// length. Longer peptides repeat the 0.30 middle weight (see stretchWeights).
var immunoweight = []float64{0.00, 0.00, 0.10, 0.31, 0.30, 0.29, 0.26, 0.18, 0.00}

// alleleMasks maps a compact allele name to its anchor positions
// (1-indexed), which are excluded from scoring.
var alleleMasks = map[string][]int{
	"H-2-DB":    {2, 5, 9},
	"H-2-DD":    {2, 3, 5},
	"H-2-KB":    {2, 3, 9},
	"H-2-KD":    {2, 5, 9},
	"H-2-KK":    {2, 8, 9},
	"H-2-LD":    {2, 5, 9},
	"HLA-A0101": {2, 3, 9},
	"HLA-A0201": {1, 2, 9},
	"HLA-A0202": {1, 2, 9},
	"HLA-A0203": {1, 2, 9},
	"HLA-A0206": {1, 2, 9},
	"HLA-A0211": {1, 2, 9},
	"HLA-A0301": {1, 2, 9},
	"HLA-A1101": {1, 2, 9},
	"HLA-A2301": {2, 7, 9},
	"HLA-A2402": {2, 7, 9},
	"HLA-A2601": {1, 2, 9},
	"HLA-A2902": {2, 7, 9},
	"HLA-A3001": {1, 3, 9},
	"HLA-A3002": {2, 7, 9},
	"HLA-A3101": {1, 2, 9},
	"HLA-A3201": {1, 2, 9},
	"HLA-A3301": {1, 2, 9},
	"HLA-A6801": {1, 2, 9},
	"HLA-A6802": {1, 2, 9},
	"HLA-A6901": {1, 2, 9},
	"HLA-B0702": {1, 2, 9},
	"HLA-B0801": {2, 5, 9},
	"HLA-B1501": {1, 2, 9},
	"HLA-B1502": {1, 2, 9},
	"HLA-B1801": {1, 2, 9},
	"HLA-B2705": {2, 3, 9},
	"HLA-B3501": {1, 2, 9},
	"HLA-B3901": {1, 2, 9},
	"HLA-B4001": {1, 2, 9},
	"HLA-B4002": {1, 2, 9},
	"HLA-B4402": {2, 3, 9},
	"HLA-B4403": {2, 3, 9},
	"HLA-B4501": {1, 2, 9},
	"HLA-B4601": {1, 2, 9},
	"HLA-B5101": {1, 2, 9},
	"HLA-B5301": {1, 2, 9},
	"HLA-B5401": {1, 2, 9},
	"HLA-B5701": {1, 2, 9},
	"HLA-B5801": {1, 2, 9},
}

//go:build amd64 && !noasm

package train

import "github.com/klauspost/cpuid/v2"

func init() {
	// gonum's assembly kernels need AVX to pay off; on older cores the
	// cache-blocked Go loop wins on the small shapes the generator sees.
	if !cpuid.CPU.Supports(cpuid.AVX) {
		matMul = matMulBlocked
	}
}

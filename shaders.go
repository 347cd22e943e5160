package wgpu2d

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// compileToSPIRV compiles WGSL source to SPIR-V words for backends that
// reject WGSL source directly.
func compileToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

// createShaderModule builds a shader module from WGSL source, falling
// back to pre-compiled SPIR-V when the device rejects WGSL.
func createShaderModule(device hal.Device, label, wgslSource string) (hal.ShaderModule, error) {
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: wgslSource},
	})
	if err == nil {
		return module, nil
	}

	spirv, spvErr := compileToSPIRV(wgslSource)
	if spvErr != nil {
		return nil, fmt.Errorf("compile %s: %w (spirv fallback: %v)", label, err, spvErr)
	}
	module, spvErr = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if spvErr != nil {
		return nil, fmt.Errorf("compile %s: %w (spirv fallback: %v)", label, err, spvErr)
	}
	return module, nil
}

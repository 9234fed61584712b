// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package feature

import (
	"math"
)

const sqrt2 = float32(math.Sqrt2)

// Mirrors out of range indices back into 0..size-1, repeating the edge pixel
func reflect(size, x int) int {
	for x<0 || x>=size {
		if x<0     { x=-x-1 }
		if x>=size { x=2*size-x-1 }
	}
	return x
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(float64((x-mu)/(sqrt2*sigma)))))
}

// Generates a normalized 1D gaussian kernel for the given sigma. Based on symbolic integration via error function.
// The kernel is truncated where the area outside it drops below 1%
func GaussianKernel1D(sigma float32) (kernel []float32) {
	mu:=float32(0)

	radius:=0
	for {
		val:=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
		if val<0.01 {
			radius--
			break
		}
		radius++
	}
	kernel=make([]float32, 2*radius+1)

	// left half via symbolic integration, right half mirrored
	sum:=float32(0)
	lower:=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius))
	for i:=0; i<=radius; i++ {
		upper:=GaussianDefiniteIntegral(mu, sigma, float32(-0.5)-float32(radius)+float32(i+1))
		kernel[i]=upper-lower
		sum+=kernel[i]
		lower=upper
	}
	for i:=1; i<=radius; i++ {
		kernel[radius+i]=kernel[radius-i]
		sum+=kernel[radius+i]
	}

	factor:=1/sum
	for i:=range kernel { kernel[i]*=factor }
	return kernel
}

// Convolves the 8 bit image with the kernel along the x axis into res
func convolveX(res []float32, data []uint8, width int, kernel []float32) {
	height:=len(data)/width
	k:=len(kernel)/2
	for y:=0; y<height; y++ {
		row:=data[y*width:(y+1)*width]
		for x:=0; x<width; x++ {
			sum:=float32(0)
			for i:=-k; i<=k; i++ {
				sum+=float32(row[reflect(width, x+i)])*kernel[i+k]
			}
			res[y*width+x]=sum
		}
	}
}

// Convolves the image with the kernel along the y axis into res
func convolveY(res, data []float32, width int, kernel []float32) {
	height:=len(data)/width
	k:=len(kernel)/2
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			sum:=float32(0)
			for i:=-k; i<=k; i++ {
				sum+=data[reflect(height, y+i)*width+x]*kernel[i+k]
			}
			res[y*width+x]=sum
		}
	}
}

// Applies a separable 2D gauss filter with the given standard deviation to an 8 bit image.
// Returns the result in a newly allocated array
func GaussFilter2D(data []uint8, width int, sigma float32) []float32 {
	if width<=0 || len(data)==0 { return nil }
	kernel:=GaussianKernel1D(sigma)
	tmp:=make([]float32, len(data))
	res:=make([]float32, len(data))
	convolveX(tmp, data, width, kernel)
	convolveY(res, tmp, width, kernel)
	return res
}
